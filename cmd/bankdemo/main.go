// Command bankdemo deposits into and withdraws from a shared account balance from many goroutines
// at once, then reports the final balance. With equal deposits and withdrawals the balance always
// ends where it started.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sharnoff/guard"
)

// shutdown is the signal used to cancel the workload
type shutdown struct{}

func main() {
	pairs := flag.Int("pairs", 10, "number of depositor/withdrawer pairs")
	repeat := flag.Int("repeat", 1000, "operations performed by each worker")
	amount := flag.Int64("amount", 100, "amount of each deposit and withdrawal")
	initial := flag.Int64("initial", 0, "starting balance")
	timeout := flag.Duration("timeout", 30*time.Second, "cancel the workload after this long")
	flag.Parse()

	logger := log.New(os.Stderr, "bankdemo ", log.LstdFlags)
	workload := guard.Pairs(*pairs, *repeat, *amount)

	os.Exit(run(logger, workload, *initial, *timeout))
}

// run executes the workload and returns the process exit code, so that deferred cleanup happens
// before exiting.
func run(logger *log.Logger, workload guard.Workload, initial int64, timeout time.Duration) int {
	mgr := guard.NewSignalManager()
	defer mgr.Stop()

	forward := func(ctx context.Context) error {
		return mgr.Trigger(shutdown{}, ctx)
	}
	onShutdown := func(context.Context) error {
		logger.Println("shutdown requested, stopping workers")
		return nil
	}
	for _, err := range []error{
		mgr.On(syscall.SIGINT, context.TODO(), forward),
		mgr.On(syscall.SIGTERM, context.TODO(), forward),
		mgr.On(shutdown{}, context.TODO(), onShutdown),
	} {
		if err != nil {
			logger.Printf("registering signal handler: %s", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(mgr.Context(shutdown{}), timeout)
	defer cancel()

	h := guard.NewHarness(guard.Config{InitialBalance: initial, Logger: logger})

	balance, err := h.RunWorkload(ctx, workload)
	if err != nil {
		var runErr *guard.RunError
		if errors.As(err, &runErr) {
			logger.Printf("balance unavailable: %s", err)
		} else {
			logger.Printf("invalid workload: %s", err)
		}
		return 1
	}

	if expected, ok := workload.Expected(initial); ok {
		fmt.Printf("Final balance: %d (expected %d)\n", balance, expected)
	} else {
		fmt.Printf("Final balance: %d\n", balance)
	}
	return 0
}
