package x10

// Controller accumulates a batch of events for a single house and sends
// them atomically via Send. It is the high-level builder surface named in
// §4.8, with one convenience method per function code in the style of
// pyx10's X10Controller. Preset Dim 0/1 go through AbsDim and Extended
// Code through ExtCode; Extended Data, Status On and Status Off have no
// builder method.
type Controller struct {
	house Code
	batch Batch
	err   error
	send  func(Batch, bool) error
}

func newController(houseLetter byte, send func(Batch, bool) error) (*Controller, error) {
	house, err := HouseCode(houseLetter)
	if err != nil {
		return nil, err
	}
	return &Controller{house: house, send: send}, nil
}

// unit appends an Address event for unit, if non-zero.
func (c *Controller) unit(unitNumber int) error {
	if unitNumber == 0 {
		return nil
	}
	u, err := UnitCode(unitNumber)
	if err != nil {
		return err
	}
	c.batch = append(c.batch, AddressEvent{House: c.house, Unit: u})
	return nil
}

func (c *Controller) function(fn Function) {
	c.batch = append(c.batch, FunctionEvent{House: c.house, Function: fn})
}

// Whole-house functions.

func (c *Controller) AllOff() *Controller       { c.function(FnAllOff); return c }
func (c *Controller) AllUnitsOff() *Controller  { c.function(FnAllOff); return c }
func (c *Controller) AllLightsOn() *Controller  { c.function(FnAllLightsOn); return c }
func (c *Controller) AllLightsOff() *Controller { c.function(FnAllLightsOff); return c }

// Simple unit functions. unitNumber of 0 means "whatever is already
// addressed"; otherwise an Address event is emitted first.

func (c *Controller) On(unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.function(FnOn)
	return c
}

func (c *Controller) Off(unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.function(FnOff)
	return c
}

func (c *Controller) Dim(unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.function(FnDim)
	return c
}

func (c *Controller) Bright(unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.function(FnBright)
	return c
}

// Dim-level functions.

func (c *Controller) RelDim(dim float64, unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.batch = append(c.batch, RelativeDimEvent{House: c.house, Dim: dim})
	return c
}

func (c *Controller) AbsDim(dim float64, unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.batch = append(c.batch, AbsoluteDimEvent{Dim: dim})
	return c
}

// Extended and hail/status functions.

func (c *Controller) ExtCode(unitNumber int, dataByte, cmdByte byte) *Controller {
	u, err := UnitCode(unitNumber)
	if err != nil {
		c.err = err
		return c
	}
	c.batch = append(c.batch, ExtendedCodeEvent{House: c.house, Unit: u, DataByte: dataByte, CmdByte: cmdByte})
	return c
}

func (c *Controller) HailReq() *Controller { c.function(FnHailReq); return c }
func (c *Controller) HailAck() *Controller { c.function(FnHailAck); return c }

func (c *Controller) StatusReq(unitNumber int) *Controller {
	c.mustUnit(unitNumber)
	c.function(FnStatusReq)
	return c
}

// mustUnit records the first unit-addressing error on the controller
// (matching the original's raise-on-call style) instead of panicking
// mid-build; it surfaces when Send is called.
func (c *Controller) mustUnit(unitNumber int) {
	if err := c.unit(unitNumber); err != nil {
		c.err = err
	}
}

// Send transmits the accumulated batch atomically and clears it. block
// mirrors put_batch's semantics: when true, Send waits until the driver
// has fully processed the batch.
func (c *Controller) Send(block bool) error {
	if c.err != nil {
		err := c.err
		c.err = nil
		c.batch = nil
		return err
	}
	batch := c.batch
	c.batch = nil
	if len(batch) == 0 {
		return nil
	}
	return c.send(batch, block)
}
