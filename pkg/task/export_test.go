package task

// ReserveSpillBudget reserves straight from the spill pool, skipping the
// task state check done by ReserveSpill.
func (c *Context) ReserveSpillBudget(bytes int64) *Future {
	return c.spill.reserve(bytes)
}
