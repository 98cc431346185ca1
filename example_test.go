package guard_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/sharnoff/guard"
)

// Ten pairs of depositors and withdrawers share one account. However their operations
// interleave, the balance ends where it started.
func Example() {
	h := guard.NewHarness(guard.Config{Logger: log.New(io.Discard, "", 0)})

	balance, err := h.Run(context.Background(), 10, 1000, 100)
	if err != nil {
		fmt.Println("balance unavailable:", err)
		return
	}
	fmt.Println("final balance:", balance)
	// Output:
	// final balance: 0
}

// A failing worker doesn't stop the others; the run still completes and reports the failure in
// place of a balance.
func ExampleRun_Report() {
	h := guard.NewHarness(guard.Config{InitialBalance: 500, Logger: log.New(io.Discard, "", 0)})
	run := h.NewRun(guard.Workload{
		Depositors:  2,
		Withdrawers: 2,
		Repeat:      10,
		Amount:      5,
		Step: func(_ context.Context, w guard.WorkerInfo, op int) error {
			if w.Name == "withdraw-1" && op == 4 {
				return errors.New("card declined")
			}
			return nil
		},
	})
	if err := run.Start(context.Background()); err != nil {
		panic(err)
	}

	balance, err := run.Report()
	var runErr *guard.RunError
	if errors.As(err, &runErr) {
		fmt.Println(balance, runErr.Failures[0])
	}
	// Output:
	// 0 worker withdraw-1 failed at operation 4: card declined
}

func ExampleCounter() {
	account := guard.NewCounter[int64](100)
	account.Increment(50)
	account.Decrement(30)
	fmt.Println(account.Read())
	// Output:
	// 120
}
