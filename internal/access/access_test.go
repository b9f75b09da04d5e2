package access

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	gov   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bot   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	other = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestRolesGrantRevoke(t *testing.T) {
	roles := NewRoles(gov)

	if roles.HasCapability(bot, CapTrader) {
		t.Fatalf("bot should not have trader before grant")
	}
	if err := roles.Grant(gov, bot, CapTrader); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !roles.HasCapability(bot, CapTrader) {
		t.Fatalf("bot should have trader")
	}
	if roles.HasCapability(bot, CapMinter) {
		t.Fatalf("grant must not leak into other capabilities")
	}
	if err := roles.Revoke(gov, bot, CapTrader); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if roles.HasCapability(bot, CapTrader) {
		t.Fatalf("bot should lose trader after revoke")
	}
}

func TestRolesOnlyGovernanceGrants(t *testing.T) {
	roles := NewRoles(gov)
	if err := roles.Grant(other, bot, CapTrader); !errors.Is(err, ErrAccessRejected) {
		t.Fatalf("expected ErrAccessRejected, got %v", err)
	}
}

func TestTransferGovernance(t *testing.T) {
	roles := NewRoles(gov)
	if err := roles.TransferGovernance(other, bot); !errors.Is(err, ErrAccessRejected) {
		t.Fatalf("expected ErrAccessRejected, got %v", err)
	}
	if err := roles.TransferGovernance(gov, other); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if roles.Governance() != other {
		t.Fatalf("governance not rotated")
	}
	if roles.HasCapability(gov, CapFeeSetter) {
		t.Fatalf("old governance keeps implicit capabilities")
	}
	if err := Require(roles, other, CapSnapshot); err != nil {
		t.Fatalf("new governance should hold every capability: %v", err)
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("trader")
	if err != nil || c != CapTrader {
		t.Fatalf("parse trader: %v %v", c, err)
	}
	if _, err := ParseCapability("root"); err == nil {
		t.Fatalf("expected error for unknown capability")
	}
}
