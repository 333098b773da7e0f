package control

import (
	"fmt"
	"os"
)

// History prints every receiver ever discovered, most recent first.
func History(configPath string) error {
	cfg, log, err := load(configPath)
	if err != nil {
		return err
	}
	b, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	records, err := b.History()
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	printHistory(os.Stdout, records, terminalWidth())
	return nil
}
