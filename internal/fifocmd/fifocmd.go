// Package fifocmd implements the ambient text command language (§6): a
// small per-line grammar for driving an x10.Interface from whatever can
// write lines into a named pipe, grounded on the FIFO-based command
// server in the original implementation.
package fifocmd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kg9x/x10d/x10"
)

var (
	reTarget  = regexp.MustCompile(`^([A-P])?(0*1[0-6]|0*[1-9])?$`)
	reRelDim  = regexp.MustCompile(`^DIM\(([+-](?:0*100|0*[0-9]{1,2}))%?\)$`)
	reAbsDim  = regexp.MustCompile(`^DIM\((0*100|0*[0-9]{1,2})%?\)$`)
	reExtCode = regexp.MustCompile(`^EXT[_-]?CODE\((0*1[0-6]|0*[0-9]{1,2}),(?:0X)?([0-9A-F]{1,2})H?(?:,(?:0X)?([0-9A-F]{1,2})H?)?\)$`)
)

var simpleCommands = map[string]x10.Function{
	"ON":           x10.FnOn,
	"OFF":          x10.FnOff,
	"ALLOFF":       x10.FnAllOff,
	"ALLUNITSOFF":  x10.FnAllOff,
	"ALLLIGHTSON":  x10.FnAllLightsOn,
	"ALLLIGHTSOFF": x10.FnAllLightsOff,
	"DIM":          x10.FnDim,
	"BRIGHT":       x10.FnBright,
	"HAIL":         x10.FnHailReq,
	"STATUS":       x10.FnStatusReq,
}

// Putter is the subset of *x10.Interface a CommandProcessor needs.
type Putter interface {
	PutBatch(b x10.Batch, block bool) error
}

// CommandProcessor parses lines of the ambient text command language and
// forwards the resulting batches to a Putter. It is not safe for
// concurrent use by more than one goroutine at a time; the FIFO server
// serializes calls to ProcessLine.
type CommandProcessor struct {
	put       Putter
	logger    *log.Logger
	house     x10.Code
	haveHouse bool
}

// NewCommandProcessor builds a CommandProcessor with house A as the
// initial current house, matching the starting state of a fresh
// controller.
func NewCommandProcessor(put Putter, logger *log.Logger) *CommandProcessor {
	return &CommandProcessor{put: put, logger: logger, house: x10.MustHouseCode('A'), haveHouse: true}
}

// ProcessLine parses one line as whitespace-separated tokens and, if
// every token is valid, sends the resulting batch atomically. An
// invalid token aborts the whole line: nothing from it is sent (§6).
func (p *CommandProcessor) ProcessLine(line string) {
	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) == 0 {
		return
	}

	var batch x10.Batch
	for _, tok := range fields {
		ev, err := p.parseToken(tok)
		if err != nil {
			p.logger.Warn("invalid command token, discarding batch", "token", tok, "line", line, "error", err)
			return
		}
		if ev != nil {
			batch = append(batch, ev)
		}
	}

	if len(batch) == 0 {
		return
	}
	p.logger.Debug("sending batch from command line", "line", line, "events", len(batch))
	if err := p.put.PutBatch(batch, false); err != nil {
		p.logger.Error("sending batch", "line", line, "error", err)
	}
}

// parseToken returns the event a single token produces, or nil if the
// token only updates processor state (e.g. setting the current house).
func (p *CommandProcessor) parseToken(tok string) (x10.Event, error) {
	if m := reTarget.FindStringSubmatch(tok); m != nil && (m[1] != "" || m[2] != "") {
		var ev x10.Event
		if m[2] != "" {
			n, _ := strconv.Atoi(m[2])
			unit, err := x10.UnitCode(n)
			if err != nil {
				return nil, err
			}
			if m[1] != "" {
				p.house = x10.MustHouseCode(m[1][0])
				p.haveHouse = true
			}
			if !p.haveHouse {
				return nil, fmt.Errorf("fifocmd: unit given with no house set")
			}
			ev = x10.AddressEvent{House: p.house, Unit: unit}
		} else {
			p.house = x10.MustHouseCode(m[1][0])
			p.haveHouse = true
		}
		return ev, nil
	}

	if fn, ok := simpleCommands[strings.NewReplacer("-", "", "_", "").Replace(tok)]; ok {
		if !p.haveHouse {
			return nil, fmt.Errorf("fifocmd: function given with no house set")
		}
		return x10.FunctionEvent{House: p.house, Function: fn}, nil
	}

	if m := reRelDim.FindStringSubmatch(tok); m != nil {
		if !p.haveHouse {
			return nil, fmt.Errorf("fifocmd: relative dim given with no house set")
		}
		n, _ := strconv.Atoi(m[1])
		return x10.RelativeDimEvent{House: p.house, Dim: float64(n) / 100}, nil
	}

	if m := reAbsDim.FindStringSubmatch(tok); m != nil {
		n, _ := strconv.Atoi(m[1])
		return x10.AbsoluteDimEvent{Dim: float64(n) / 100}, nil
	}

	if m := reExtCode.FindStringSubmatch(tok); m != nil {
		if !p.haveHouse {
			return nil, fmt.Errorf("fifocmd: ext-code given with no house set")
		}
		unitNum, _ := strconv.Atoi(m[1])
		unit, err := x10.UnitCode(unitNum)
		if err != nil {
			return nil, err
		}
		first, err := strconv.ParseUint(m[2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("fifocmd: parsing ext-code byte: %w", err)
		}
		var dataByte, cmdByte byte
		if m[3] != "" {
			second, err := strconv.ParseUint(m[3], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("fifocmd: parsing ext-code byte: %w", err)
			}
			dataByte, cmdByte = byte(first), byte(second)
		} else {
			dataByte, cmdByte = 0, byte(first)
		}
		return x10.ExtendedCodeEvent{House: p.house, Unit: unit, DataByte: dataByte, CmdByte: cmdByte}, nil
	}

	return nil, fmt.Errorf("fifocmd: unrecognized token %q", tok)
}

