package tables

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/worldsim/worldsim/sim"
)

// File base names inside an export directory.
const (
	SalesFile         = "sales"
	MarketingFile     = "marketing"
	InventoryFile     = "inventory"
	UnitEconomicsFile = "unit_economics"
)

const (
	csvExt  = ".csv"
	zstdExt = ".csv.zst"
)

// Set is the full table set of one company.
type Set struct {
	Sales         []sim.SalesRecord
	Marketing     []sim.MarketingRecord
	Inventory     []sim.InventoryRecord
	UnitEconomics []sim.UnitEconomicsRow
}

// FromHistory assembles a table set from a run and its configuration.
func FromHistory(cfg *sim.WorldConfig, h *sim.History) *Set {
	return &Set{
		Sales:         h.Sales,
		Marketing:     h.Marketing,
		Inventory:     h.Inventory,
		UnitEconomics: cfg.UnitEconomicsTable(),
	}
}

// WriteDir writes the four tables into dir, creating it if needed. With
// compress set each file is zstd-compressed and named *.csv.zst.
func WriteDir(dir string, set *Set, compress bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	writes := []struct {
		name  string
		write func(io.Writer) error
	}{
		{SalesFile, func(w io.Writer) error { return WriteSales(w, set.Sales) }},
		{MarketingFile, func(w io.Writer) error { return WriteMarketing(w, set.Marketing) }},
		{InventoryFile, func(w io.Writer) error { return WriteInventory(w, set.Inventory) }},
		{UnitEconomicsFile, func(w io.Writer) error { return WriteUnitEconomics(w, set.UnitEconomics) }},
	}
	for _, wr := range writes {
		if err := writeFile(dir, wr.name, compress, wr.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(dir, name string, compress bool, write func(io.Writer) error) (err error) {
	ext := csvExt
	if compress {
		ext = zstdExt
	}
	path := filepath.Join(dir, name+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if !compress {
		bw := bufio.NewWriter(f)
		if err := write(bw); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		return bw.Flush()
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := write(enc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return enc.Close()
}

// ReadDir loads a table set from dir. Each table may be plain or
// zstd-compressed; a plain file wins when both exist.
func ReadDir(dir string) (*Set, error) {
	set := &Set{}
	reads := []struct {
		name string
		read func(io.Reader) error
	}{
		{SalesFile, func(r io.Reader) (err error) {
			set.Sales, err = ReadSales(r)
			return err
		}},
		{MarketingFile, func(r io.Reader) (err error) {
			set.Marketing, err = ReadMarketing(r)
			return err
		}},
		{InventoryFile, func(r io.Reader) (err error) {
			set.Inventory, err = ReadInventory(r)
			return err
		}},
		{UnitEconomicsFile, func(r io.Reader) (err error) {
			set.UnitEconomics, err = ReadUnitEconomics(r)
			return err
		}},
	}
	for _, rd := range reads {
		if err := readFile(dir, rd.name, rd.read); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func readFile(dir, name string, read func(io.Reader) error) error {
	plain := filepath.Join(dir, name+csvExt)
	f, err := os.Open(plain)
	if err == nil {
		defer f.Close()
		return read(bufio.NewReader(f))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("opening %s: %w", plain, err)
	}

	compressed := filepath.Join(dir, name+zstdExt)
	f, err = os.Open(compressed)
	if err != nil {
		return fmt.Errorf("no %s table in %s: %w", name, dir, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening %s: %w", compressed, err)
	}
	defer dec.Close()
	return read(dec)
}
