package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DayFunc receives each simulated day of a run, in date order. Returning an
// error stops the run; days already delivered are not rolled back.
type DayFunc func(day *DayResult) error

// RunRange simulates every day from start to end inclusive with one random
// stream seeded from seed, starting from stock (nil means every product at
// cfg.StartingStock). Each day is handed to fn before the next is stepped.
// It returns the closing stock after the last completed day.
func RunRange(cfg *WorldConfig, start, end time.Time, seed int64, stock StockState, fn DayFunc) (StockState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, end = civilDate(start), civilDate(end)
	if end.Before(start) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}
	if stock == nil {
		stock = make(StockState, len(cfg.Products))
		for _, p := range cfg.Products {
			stock[p] = cfg.StartingStock
		}
	}

	rng := NewSimulationKey(seed).Stream()
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := StepDay(d, stock, rng, cfg)
		if err := fn(day); err != nil {
			return stock, fmt.Errorf("day %s: %w", FormatDate(d), err)
		}
		stock = day.Stock
		days++
	}
	logrus.Infof("simulated %d days %s..%s (seed %d)", days, FormatDate(start), FormatDate(end), seed)
	return stock, nil
}

// CreateHistory simulates start..end inclusive from starting stock and
// returns the full tables. The run is deterministic in (cfg, start, end, seed).
func CreateHistory(cfg *WorldConfig, start, end time.Time, seed int64) (*History, error) {
	h := &History{}
	_, err := RunRange(cfg, start, end, seed, nil, func(day *DayResult) error {
		h.Append(day)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// AdvanceOneDay simulates the day after the latest date in inventoryLog,
// starting from stock reconstructed from that log alone.
//
// The day is seeded with NewSimulationKey(*seed).ForDay(date) when seed is
// non-nil and from the wall clock otherwise. A resumed day therefore does not
// reproduce the same calendar day of a full-range run with the same seed.
func AdvanceOneDay(cfg *WorldConfig, inventoryLog []InventoryRecord, seed *int64) (*DayResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(inventoryLog) == 0 {
		return nil, &InsufficientHistoryError{}
	}
	stock, last := ReconstructStock(cfg, inventoryLog)
	next := last.AddDate(0, 0, 1)

	var key SimulationKey
	if seed != nil {
		key = NewSimulationKey(*seed).ForDay(next)
	} else {
		key = NewSimulationKey(time.Now().UnixNano())
	}
	day := StepDay(next, stock, key.Stream(), cfg)
	logrus.Infof("advanced to %s", FormatDate(next))
	return day, nil
}
