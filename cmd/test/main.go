package main

import (
	"fmt"

	"github.com/dushixiang/ladder/pkg/ladder"
)

func main() {

	rungs, err := ladder.Plan(ladder.Params{
		ExecuteRate: 1000,
		FirstStep:   0.05,
		Coverage:    0.20,
		Martingale:  0.10,
		Steps:       4,
		Budget:      100,
		Balance:     100,
	})
	if err != nil {
		panic(err)
	}
	for i, r := range rungs {
		fmt.Printf("#%d rate=%.4f amount=%.4f\n", i, r.Rate, r.Amount)
	}

}
