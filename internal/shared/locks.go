package shared

import "fmt"

// IncomingOrderLockKey builds redis keys guarding order arrival processing.
func IncomingOrderLockKey(orderID string) string {
	return fmt.Sprintf("stock:incoming:%s:lock", orderID)
}
