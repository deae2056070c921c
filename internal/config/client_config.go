package config

import "time"

type ClientConfig interface {
	GetRequestTimeout() time.Duration
	GetAuthStateKey() string
	GetOrdersKeyPrefix() string
}

type Client struct {
	timeout time.Duration
}

var _ ClientConfig = Client{}

func (c Client) GetRequestTimeout() time.Duration {
	if c.timeout <= 0 {
		return 10 * time.Second
	}
	return c.timeout
}

func (Client) GetAuthStateKey() string {
	return "store-auth-state"
}

func (Client) GetOrdersKeyPrefix() string {
	return "store-orders-"
}
