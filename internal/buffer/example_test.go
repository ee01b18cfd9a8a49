package buffer_test

import (
	"fmt"

	"github.com/jittakal/logaggregator/internal/buffer"
	"github.com/jittakal/logaggregator/pkg/store"
)

func Example_categoryBuffer() {
	buf := buffer.New(1000)

	for i := 0; i < 5; i++ {
		buf.Add(store.MessageBatch{{
			Category: "orders",
			Message:  []byte(fmt.Sprintf(`{"orderId": %d}`, i)),
		}})
	}

	stats := buf.Stats()
	fmt.Printf("Records buffered: %d\n", stats.RecordCount)
	fmt.Printf("Buffer is empty: %v\n", buf.IsEmpty())

	entries := buf.Drain()
	fmt.Printf("Drained %d entries\n", len(entries))
	fmt.Printf("Buffer is empty after drain: %v\n", buf.IsEmpty())

	// Output:
	// Records buffered: 5
	// Buffer is empty: false
	// Drained 5 entries
	// Buffer is empty after drain: true
}

func Example_bufferManager() {
	manager := buffer.NewManager(1000)

	buf0 := manager.GetOrCreate("orders")
	buf1 := manager.GetOrCreate("shipments")

	fmt.Printf("orders and shipments buffers are different: %v\n", buf0 != buf1)

	buf0Again := manager.GetOrCreate("orders")
	fmt.Printf("getting orders again returns same buffer: %v\n", buf0 == buf0Again)

	// Output:
	// orders and shipments buffers are different: true
	// getting orders again returns same buffer: true
}
