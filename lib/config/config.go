/*Package config parses the input file and command-line flags that
configure a run (spec.md 6), grounded on original_source's main.cpp
parsing loop and on guppy's catio-style line-oriented text reading.
*/
package config

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// EnergyMode selects the potential-energy algorithm the driver uses
// (SPEC_FULL.md 10 decision 4).
type EnergyMode string

const (
	EnergyExact  EnergyMode = "exact"
	EnergyApprox EnergyMode = "approx"
)

// Species is one declared particle species: a name and its mass/charge
// ratio (iqom; the integrator uses qom = 1/iqom).
type Species struct {
	Name string
	IQOM float64
}

// Run holds every parameter a simulation needs, whether it came from the
// input file or the command line.
type Run struct {
	N            int64
	R            float64
	Dt           float64
	Tend         float64
	SaveInterval int
	MaxSpecies   int
	BufferSize   int
	EnergyMode   EnergyMode
	Species      []Species

	SavePositions bool
	SaveState     bool
	NoSave        bool
}

// Flags are the parsed command-line switches (spec.md 6).
type Flags struct {
	InputPath string
	P, S, E, N bool
}

// ParseArgs parses os.Args-style arguments: <program> <input_file>
// [-p] [-s] [-e] [-n]. save-state defaults on unless -n is given.
func ParseArgs(args []string) (Flags, error) {
	fs := flag.NewFlagSet("sparc", flag.ContinueOnError)
	p := fs.Bool("p", false, "enable binary position dumps")
	s := fs.Bool("s", false, "enable CSV energy/state log")
	e := fs.Bool("e", false, "enable energy-distribution dump (alias of -s)")
	n := fs.Bool("n", false, "disable all output (benchmark mode)")

	if len(args) < 1 {
		return Flags{}, fmt.Errorf("usage: sparc <input_file> [-p] [-s] [-e] [-n]")
	}
	inputPath := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return Flags{}, err
	}
	return Flags{InputPath: inputPath, P: *p, S: *s, E: *e, N: *n}, nil
}

// apply turns CLI flags into the output-selection fields of Run,
// matching original_source's defaulting: state logging is on unless -n
// is given, and -e is a no-op alias of -s (SPEC_FULL.md 10 decision 2).
func (f Flags) apply(r *Run) {
	r.SavePositions = f.P
	r.SaveState = f.S || f.E || (!f.N)
	r.NoSave = f.N
	if f.N {
		r.SaveState = false
		r.SavePositions = false
	}
}

// ParseInputFile reads path and returns the populated Run, applying cli
// for output selection. Unknown keys produce a warning via warn (pass
// nil to suppress); they are never fatal.
func ParseInputFile(path string, cli Flags, warn func(string)) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file %s: %w", path, err)
	}
	defer f.Close()

	r := &Run{
		SaveInterval: 100,
		MaxSpecies:   10,
		BufferSize:   32768,
		EnergyMode:   EnergyExact,
	}

	if err := parseLines(f, r, warn); err != nil {
		return nil, err
	}
	cli.apply(r)

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func parseLines(rd io.Reader, r *Run, warn func(string)) error {
	scanner := bufio.NewScanner(rd)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := parseLine(line, r, warn); err != nil {
			return fmt.Errorf("input file line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// parseLine tokenizes one directive. Two shapes are accepted: "KEY =
// VALUE" (or "KEY VALUE", see splitKeyValue) and "species NAME IQOM"
// (whitespace-separated, no '=').
func parseLine(line string, r *Run, warn func(string)) error {
	if strings.HasPrefix(line, "species") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return fmt.Errorf("malformed species line %q", line)
		}
		iqom, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Errorf("species %s: invalid iqom %q: %w", fields[1], fields[2], err)
		}
		if iqom == 0 {
			return fmt.Errorf("species %s: iqom must be nonzero", fields[1])
		}
		r.Species = append(r.Species, Species{Name: fields[1], IQOM: iqom})
		return nil
	}

	key, value, ok := splitKeyValue(line)
	if !ok {
		if warn != nil {
			warn(fmt.Sprintf("ignoring unrecognized line: %q", line))
		}
		return nil
	}

	switch key {
	case "N":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("N: %w", err)
		}
		r.N = n
	case "R":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("R: %w", err)
		}
		r.R = v
	case "dt":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("dt: %w", err)
		}
		r.Dt = v
	case "tend":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("tend: %w", err)
		}
		r.Tend = v
	case "SAVE_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("SAVE_INTERVAL: %w", err)
		}
		r.SaveInterval = v
	case "MAX_SPECIES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("MAX_SPECIES: %w", err)
		}
		r.MaxSpecies = v
	case "BUFFER_SIZE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("BUFFER_SIZE: %w", err)
		}
		r.BufferSize = v
	case "ENERGY_MODE":
		switch EnergyMode(value) {
		case EnergyExact, EnergyApprox:
			r.EnergyMode = EnergyMode(value)
		default:
			return fmt.Errorf("ENERGY_MODE: unrecognized value %q (want exact or approx)", value)
		}
	default:
		if warn != nil {
			warn(fmt.Sprintf("ignoring unrecognized key %q", key))
		}
	}
	return nil
}

// splitKeyValue accepts "key = value" or "key value" (the original
// grammar's two tokenization branches: split on '=' if present,
// otherwise on whitespace).
func splitKeyValue(line string) (key, value string, ok bool) {
	if i := strings.Index(line, "="); i >= 0 {
		key = strings.TrimSpace(line[:i])
		value = strings.TrimSpace(line[i+1:])
		return key, value, key != "" && value != ""
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[len(fields)-1], true
}

func (r *Run) validate() error {
	var missing []string
	if r.N <= 0 {
		missing = append(missing, "N")
	}
	if r.R <= 0 {
		missing = append(missing, "R")
	}
	if r.Dt <= 0 {
		missing = append(missing, "dt")
	}
	if r.Tend <= 0 {
		missing = append(missing, "tend")
	}
	if len(r.Species) == 0 {
		missing = append(missing, "species")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or invalid parameters: %s", strings.Join(missing, ", "))
	}
	if len(r.Species) > r.MaxSpecies {
		return fmt.Errorf("%d species declared, exceeds MAX_SPECIES=%d", len(r.Species), r.MaxSpecies)
	}
	return nil
}

// Steps returns Nt, the number of integration steps (⌈tend/dt⌉).
func (r *Run) Steps() int64 {
	return int64(math.Ceil(r.Tend / r.Dt))
}

// LocalCount returns N_local for a given rank: particles_per_rank plus
// one if rank is within the remainder (even distribution, matching
// original_source's local_N computation).
func (r *Run) LocalCount(rank, size int) int {
	perRank := r.N / int64(size)
	remainder := r.N % int64(size)
	n := perRank
	if int64(rank) < remainder {
		n++
	}
	return int(n)
}
