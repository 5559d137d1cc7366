// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"net"
	"regexp"

	"github.com/google/uuid"

	"grimm.is/fognet/internal/errors"
)

// Action is the verdict a rule applies to matching traffic.
type Action string

const (
	ActionAccept     Action = "accept"
	ActionDrop       Action = "drop"
	ActionMasquerade Action = "masquerade"
)

// Rule is one entry of a network's ruleset. Matches are ANDed; empty
// fields match anything. Masquerade rules live in the postrouting chain,
// accept/drop in the forward chain.
type Rule struct {
	Action       Action `json:"action"`
	SourceCIDR   string `json:"source_cidr,omitempty"`
	DestCIDR     string `json:"dest_cidr,omitempty"`
	InInterface  string `json:"in_interface,omitempty"`
	OutInterface string `json:"out_interface,omitempty"`
}

// RuleSet is the ordered rule list enforced for one virtual network. It is
// translated into a dedicated nftables table named after the network id and
// replaced atomically on every change.
type RuleSet struct {
	NetworkID uuid.UUID `json:"network_id"`
	Rules     []Rule    `json:"rules"`
}

var identRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Validate checks every rule for well-formedness before anything touches
// the kernel. Failures are rule_syntax errors and non-retryable.
func (rs *RuleSet) Validate() error {
	if rs.NetworkID == uuid.Nil {
		return errors.New(errors.KindRuleSyntax, "ruleset has no network id")
	}
	for i, r := range rs.Rules {
		switch r.Action {
		case ActionAccept, ActionDrop, ActionMasquerade:
		default:
			return errors.Errorf(errors.KindRuleSyntax, "rule %d: unknown action %q", i, r.Action)
		}
		for _, cidr := range []string{r.SourceCIDR, r.DestCIDR} {
			if cidr == "" {
				continue
			}
			ip, _, err := net.ParseCIDR(cidr)
			if err != nil {
				return errors.Wrapf(err, errors.KindRuleSyntax, "rule %d: invalid CIDR %q", i, cidr)
			}
			if ip.To4() == nil {
				return errors.Errorf(errors.KindRuleSyntax, "rule %d: only IPv4 CIDRs are supported, got %q", i, cidr)
			}
		}
		for _, iface := range []string{r.InInterface, r.OutInterface} {
			if iface != "" && !identRe.MatchString(iface) {
				return errors.Errorf(errors.KindRuleSyntax, "rule %d: invalid interface name %q", i, iface)
			}
		}
		if r.Action == ActionMasquerade && r.SourceCIDR == "" {
			return errors.Errorf(errors.KindRuleSyntax, "rule %d: masquerade requires a source CIDR", i)
		}
	}
	return nil
}

// DefaultRuleSet builds the standard per-network policy: NAT the subnet out
// of the uplink interface and keep traffic from other managed subnets out.
func DefaultRuleSet(networkID uuid.UUID, subnet, uplink string, isolatedFrom []string) *RuleSet {
	rs := &RuleSet{NetworkID: networkID}
	for _, other := range isolatedFrom {
		rs.Rules = append(rs.Rules, Rule{
			Action:     ActionDrop,
			SourceCIDR: other,
			DestCIDR:   subnet,
		})
	}
	if uplink != "" {
		rs.Rules = append(rs.Rules, Rule{
			Action:       ActionMasquerade,
			SourceCIDR:   subnet,
			OutInterface: uplink,
		})
	}
	return rs
}
