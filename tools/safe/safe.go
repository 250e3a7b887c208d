package safe

import (
	"GProject/logger"
)

// Go starts a goroutine that recovers from panic, so a misbehaving
// handler can't take down the whole client.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
