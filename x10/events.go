package x10

import "fmt"

// Function is a 4-bit X10 function code.
type Function uint8

const (
	FnAllOff       Function = 0x0
	FnAllLightsOn  Function = 0x1
	FnOn           Function = 0x2
	FnOff          Function = 0x3
	FnDim          Function = 0x4
	FnBright       Function = 0x5
	FnAllLightsOff Function = 0x6
	FnExtCode      Function = 0x7
	FnHailReq      Function = 0x8
	FnHailAck      Function = 0x9
	FnPresetDim0   Function = 0xA
	FnPresetDim1   Function = 0xB
	FnExtData      Function = 0xC
	FnStatusOn     Function = 0xD
	FnStatusOff    Function = 0xE
	FnStatusReq    Function = 0xF
)

var functionNames = map[Function]string{
	FnAllOff: "All Off", FnAllLightsOn: "All Lights On", FnOn: "On", FnOff: "Off",
	FnDim: "Dim", FnBright: "Bright", FnAllLightsOff: "All Lights Off", FnExtCode: "Extended Code",
	FnHailReq: "Hail Request", FnHailAck: "Hail Acknowledgement", FnPresetDim0: "Preset Dim 0",
	FnPresetDim1: "Preset Dim 1", FnExtData: "Extended Data", FnStatusOn: "Status is On",
	FnStatusOff: "Status is Off", FnStatusReq: "Status Request",
}

func (f Function) String() string {
	if name, ok := functionNames[f&0xF]; ok {
		return name
	}
	return fmt.Sprintf("Function(0x%X)", uint8(f))
}

// RelativeDimSteps is the number of discrete relative-dim steps that
// separate a dim level of 0% from a dim level of 100%.
const RelativeDimSteps = 22

// Event is implemented by the five X10 event variants. Events are
// immutable values: once constructed they are handed to a queue and
// never mutated.
type Event interface {
	isEvent()
	String() string
}

// Batch is an ordered sequence of events transmitted as one atomic unit.
type Batch []Event

// AddressEvent addresses a unit for subsequent Function events.
type AddressEvent struct {
	House Code
	Unit  Code
}

func (AddressEvent) isEvent() {}

func (e AddressEvent) String() string {
	h, _ := HouseLetter(e.House)
	u, _ := UnitNumber(e.Unit)
	return fmt.Sprintf("<Address: house %c (0x%X), unit %d (0x%X)>", h, e.House, u, e.Unit)
}

// FunctionEvent applies a function to whichever units are currently
// addressed on the given house.
type FunctionEvent struct {
	House    Code
	Function Function
}

func (FunctionEvent) isEvent() {}

func (e FunctionEvent) String() string {
	h, _ := HouseLetter(e.House)
	return fmt.Sprintf("<Function: %s (0x%X) at house %c (0x%X)>", e.Function, uint8(e.Function), h, e.House)
}

// RelativeDimEvent nudges the dim level by a signed fraction of the
// RelativeDimSteps-step range. Negative values dim, positive values
// brighten.
type RelativeDimEvent struct {
	House Code
	Dim   float64 // -1..+1
}

func (RelativeDimEvent) isEvent() {}

func (e RelativeDimEvent) String() string {
	h, _ := HouseLetter(e.House)
	return fmt.Sprintf("<RelativeDim: dim %d%% at house %c (0x%X)>", int(e.Dim*100), h, e.House)
}

// AbsoluteDimEvent sets a preset dim level.
type AbsoluteDimEvent struct {
	Dim float64 // 0..1
}

func (AbsoluteDimEvent) isEvent() {}

func (e AbsoluteDimEvent) String() string {
	return fmt.Sprintf("<AbsoluteDim: dim %d%%>", int(e.Dim*100))
}

// ExtendedCodeEvent carries a 24-bit extended data/command payload.
type ExtendedCodeEvent struct {
	House    Code
	Unit     Code
	DataByte byte
	CmdByte  byte
}

func (ExtendedCodeEvent) isEvent() {}

func (e ExtendedCodeEvent) String() string {
	h, _ := HouseLetter(e.House)
	u, _ := UnitNumber(e.Unit)
	return fmt.Sprintf("<ExtendedCode: house %c (0x%X), unit %d (0x%X), data 0x%02X, cmd 0x%02X>",
		h, e.House, u, e.Unit, e.DataByte, e.CmdByte)
}
