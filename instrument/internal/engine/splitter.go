package engine

import (
	"github.com/wippyai/resumable/classfile"
)

// split carves the state save and restore of every suspension point out of
// the method's exception ranges. The call itself opens the part after the
// point, so exceptions thrown by the callee still reach the user handler.
// Ranges keep their relative order; the part after a point is inserted
// right behind the part before it.
func (r *rewrite) split() ([]classfile.ExceptionRange, error) {
	ranges := append([]classfile.ExceptionRange(nil), r.m.Ranges...)
	for _, rg := range ranges {
		if rg.Type == classfile.SuspendClass {
			return nil, r.fail("catch for %s", classfile.SuspendClass)
		}
	}

	pos := make(map[uint32]int, len(r.labelPos)+2*len(r.points))
	for id, at := range r.labelPos {
		pos[id] = at
	}
	for _, p := range r.points {
		p.before = r.newLabel()
		p.after = r.newLabel()
		pos[p.before] = p.Index
		pos[p.after] = p.Index
	}

	for _, p := range r.points {
		c := p.Index
		for i := 0; i < len(ranges); i++ {
			rg := ranges[i]
			start, end := pos[rg.Start], pos[rg.End]
			if start > c || c >= end {
				continue
			}
			if start == c {
				ranges[i].Start = p.after
				continue
			}
			tail := classfile.ExceptionRange{Type: rg.Type, Start: p.after, End: rg.End, Handler: rg.Handler}
			ranges[i].End = p.before
			ranges = append(ranges[:i+1], append([]classfile.ExceptionRange{tail}, ranges[i+1:]...)...)
		}
	}
	return ranges, nil
}
