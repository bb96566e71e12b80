package channel

import (
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"perun.network/perun-ton-backend/wire"
)

// StateInit pairs the channel contract code with the initial data image of
// cfg.
func StateInit(cfg wire.ChannelConfig) (*tlb.StateInit, error) {
	code, err := wire.ChannelCode()
	if err != nil {
		return nil, err
	}
	data, err := cfg.InitialData()
	if err != nil {
		return nil, fmt.Errorf("building initial data: %w", err)
	}
	return &tlb.StateInit{Code: code, Data: data}, nil
}

// DeriveAddress returns the address the channel contract of cfg is deployed
// at: the workchain of cfg and the hash of the StateInit cell.
func DeriveAddress(cfg wire.ChannelConfig) (*address.Address, error) {
	si, err := StateInit(cfg)
	if err != nil {
		return nil, err
	}
	return addressOf(cfg.Workchain, si)
}

func addressOf(workchain int8, si *tlb.StateInit) (*address.Address, error) {
	c, err := tlb.ToCell(si)
	if err != nil {
		return nil, fmt.Errorf("serializing state init: %w", err)
	}
	return address.NewAddress(0, byte(workchain), c.Hash()), nil
}
