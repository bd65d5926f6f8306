package shared

import "fmt"

// PaymentPollLockKey builds the redis key guarding a payment status poll.
func PaymentPollLockKey(paymentID string) string {
	return fmt.Sprintf("payment:%s:poll:lock", paymentID)
}

// SidecarRestartLockKey guards concurrent sidecar restarts across replicas.
const SidecarRestartLockKey = "messaging:sidecar:restart:lock"
