package proxyshape

import (
	"github.com/aretw0/proxyshape/pkg/domain"
)

// materializeCmd takes one explicit reference on a chain or subtree.
type materializeCmd struct {
	proxy   *Proxy
	path    domain.Path
	subtree bool
}

func (c *materializeCmd) Name() string {
	if c.subtree {
		return "materialize subtree " + c.path.String()
	}
	return "materialize " + c.path.String()
}

func (c *materializeCmd) Do() error {
	p := c.proxy
	if c.subtree {
		if _, err := p.builder.MaterializeSubtree(c.path, domain.ReasonRequested); err != nil {
			return err
		}
		p.subtrees[c.path]++
		return nil
	}
	if _, err := p.builder.MaterializeChain(c.path, domain.ReasonRequested); err != nil {
		return err
	}
	p.requested[c.path]++
	return nil
}

func (c *materializeCmd) Undo() error {
	return (&dematerializeCmd{proxy: c.proxy, path: c.path, subtree: c.subtree}).Do()
}

// dematerializeCmd releases a reference taken by materializeCmd.
type dematerializeCmd struct {
	proxy   *Proxy
	path    domain.Path
	subtree bool
}

func (c *dematerializeCmd) Name() string {
	if c.subtree {
		return "dematerialize subtree " + c.path.String()
	}
	return "dematerialize " + c.path.String()
}

func (c *dematerializeCmd) Do() error {
	p := c.proxy
	held := p.requested
	if c.subtree {
		held = p.subtrees
	}
	if held[c.path] == 0 {
		return nil
	}
	var err error
	if c.subtree {
		err = p.builder.DematerializeSubtree(c.path, domain.ReasonRequested)
	} else {
		err = p.builder.DematerializeChain(c.path, domain.ReasonRequested)
	}
	if held[c.path]--; held[c.path] == 0 {
		delete(held, c.path)
	}
	if err != nil {
		// The references are released either way; undeletable nodes stay recorded.
		p.logger.Warn("dematerialize left shadow nodes behind", "path", c.path, "err", err)
	}
	return nil
}

func (c *dematerializeCmd) Undo() error {
	return (&materializeCmd{proxy: c.proxy, path: c.path, subtree: c.subtree}).Do()
}
