package spiketrain_test

import (
	"fmt"

	"github.com/cwbudde/algo-spike/spiketrain"
)

func ExampleNormalize() {
	train := spiketrain.Train{
		{Time: 120, Unit: 17},
		{Time: 340, Unit: 4},
		{Time: 560, Unit: 17},
	}

	for _, ev := range spiketrain.Normalize(train) {
		fmt.Println(ev.Time, ev.Unit)
	}
	// Output:
	// 120 1
	// 340 0
	// 560 1
}
