// Package events holds the payloads published by the inventory service.
package events

import (
	"encoding/json"
	"time"

	"github.com/stocktrack/inventory/pkg/messaging"
)

// LowStockAlertEvent is emitted when a product's stock drops below its threshold.
type LowStockAlertEvent struct {
	Carrier           map[string]string `json:"carrier,omitempty"`
	ProductID         int64             `json:"product_id"`
	Name              string            `json:"name"`
	StockQuantity     int64             `json:"stock_quantity"`
	LowStockThreshold int64             `json:"low_stock_threshold"`
	DetectedAt        time.Time         `json:"detected_at"`
}

func (e LowStockAlertEvent) Subject() string {
	return messaging.LowStockAlertSubject
}

func (e LowStockAlertEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
