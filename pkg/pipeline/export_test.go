package pipeline

import "github.com/Sumatoshi-tech/pipetrack/pkg/driver"

// RetireWithStats retires d folding s instead of the driver's live stats.
func (c *Context) RetireWithStats(d *driver.Context, s driver.Stats) error {
	return c.retire(d, func() driver.Stats { return s })
}
