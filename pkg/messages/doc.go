// Package messages provides the process-wide message and error broadcast every
// failure in the extension engine funnels into.
//
// Parse failures, load failures, unsatisfied sibling requirements and update errors
// are published here instead of unwinding the component that hit them. Delivery is
// non-blocking: a subscriber whose buffer is full misses the message and the drop is
// logged.
//
//	bus := messages.NewBus(100, logger)
//	sub := bus.Subscribe(16)
//	defer sub.Close()
//
//	for msg := range sub.C {
//		fmt.Println(msg.Level, msg.Text)
//	}
package messages
