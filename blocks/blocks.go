// Package blocks creates block types by name.
package blocks

import (
	"fmt"

	"github.com/sarchlab/ispcore/blocks/byrp"
	"github.com/sarchlab/ispcore/blocks/mcsc"
	"github.com/sarchlab/ispcore/blocks/mlsc"
	"github.com/sarchlab/ispcore/blocks/mtnr"
	"github.com/sarchlab/ispcore/blocks/yuvp"
	"github.com/sarchlab/ispcore/hwblock"
)

// Types lists the known block types in pipeline order.
func Types() []string {
	return []string{byrp.Type, mlsc.Type, yuvp.Type, mtnr.Type, mcsc.Type}
}

// New creates the ops of a block type.
func New(typ string) (hwblock.Ops, error) {
	switch typ {
	case byrp.Type:
		return byrp.New(true), nil
	case mlsc.Type:
		return mlsc.New(), nil
	case yuvp.Type:
		return yuvp.New(), nil
	case mtnr.Type:
		return mtnr.New(), nil
	case mcsc.Type:
		return mcsc.New(), nil
	default:
		return nil, fmt.Errorf("unknown block type %q", typ)
	}
}
