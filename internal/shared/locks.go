package shared

import "fmt"

// SweepLockKey builds redis keys guarding a scheduled sweep for a calendar day.
func SweepLockKey(name, day string) string {
	return fmt.Sprintf("shopledger:sweep:%s:%s:lock", name, day)
}
