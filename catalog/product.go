package catalog

type Warehouse struct {
	WarehouseID   int64  `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`
	Quantity      int    `json:"quantity"`
}

// Product is one row of GET /api/products/stock.
type Product struct {
	ProductID     int64       `json:"productId"`
	ProductName   string      `json:"productName"`
	Price         float64     `json:"price"`
	TotalQuantity int         `json:"totalQuantity"`
	Warehouses    []Warehouse `json:"warehouses"`
}

func (p Product) InStock() bool {
	return p.TotalQuantity > 0
}

// MaxQuantity is the upper bound offered for the quantity input, never below 1.
func (p Product) MaxQuantity() int {
	return max(p.TotalQuantity, 1)
}
