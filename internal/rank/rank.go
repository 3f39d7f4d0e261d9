// Package rank models League of Legends Solo/Duo standings: tiers,
// divisions, a comparable encoding, and the tier-to-role mapping.
package rank

import (
	"fmt"
	"strings"
)

// Tier is one of the 10 ordered competitive tiers
type Tier string

const (
	TierIron        Tier = "IRON"
	TierBronze      Tier = "BRONZE"
	TierSilver      Tier = "SILVER"
	TierGold        Tier = "GOLD"
	TierPlatinum    Tier = "PLATINUM"
	TierEmerald     Tier = "EMERALD"
	TierDiamond     Tier = "DIAMOND"
	TierMaster      Tier = "MASTER"
	TierGrandmaster Tier = "GRANDMASTER"
	TierChallenger  Tier = "CHALLENGER"
)

// Division is a sub-rank within a tier, I (highest) to IV (lowest)
type Division string

const (
	DivisionI   Division = "I"
	DivisionII  Division = "II"
	DivisionIII Division = "III"
	DivisionIV  Division = "IV"
)

// TierOrder lists all tiers from highest to lowest, the order the
// leaderboard groups them in.
var TierOrder = []Tier{
	TierChallenger, TierGrandmaster, TierMaster, TierDiamond, TierEmerald,
	TierPlatinum, TierGold, TierSilver, TierBronze, TierIron,
}

var tierValues = map[Tier]int{
	TierIron: 0, TierBronze: 1, TierSilver: 2, TierGold: 3, TierPlatinum: 4,
	TierEmerald: 5, TierDiamond: 6, TierMaster: 7, TierGrandmaster: 8,
	TierChallenger: 9,
}

var divisionValues = map[Division]int{
	DivisionIV: 1, DivisionIII: 2, DivisionII: 3, DivisionI: 4,
}

// ParseTier normalizes and validates a tier string from the API or user input
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := tierValues[t]; !ok {
		return "", fmt.Errorf("unknown tier: %q", s)
	}
	return t, nil
}

// ParseDivision normalizes and validates a division string
func ParseDivision(s string) (Division, error) {
	d := Division(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := divisionValues[d]; !ok {
		return "", fmt.Errorf("unknown division: %q", s)
	}
	return d, nil
}

// Standing is a player's Solo/Duo rank at one point in time
type Standing struct {
	Tier         Tier
	Division     Division
	LeaguePoints int
}

// Value encodes the standing as a single comparable integer. Tier
// dominates division, division dominates league points; holds as long
// as LP within a division stays below 100.
func (s Standing) Value() int {
	return tierValues[s.Tier]*1000 + divisionValues[s.Division]*100 + s.LeaguePoints
}

// BaseValue is Value at zero LP. Promotion detection compares base
// values so LP churn within a division never counts as a promotion.
func (s Standing) BaseValue() int {
	return tierValues[s.Tier]*1000 + divisionValues[s.Division]*100
}

func (s Standing) String() string {
	return fmt.Sprintf("%s %s %dLP", s.Tier, s.Division, s.LeaguePoints)
}

// RoleNames maps each tier to the Discord role mirroring it.
// Callers receive this table explicitly; nothing reads it as a global.
func RoleNames() map[Tier]string {
	return map[Tier]string{
		TierIron:        "LoL Iron(Solo/Duo)",
		TierBronze:      "LoL Bronze(Solo/Duo)",
		TierSilver:      "LoL Silver(Solo/Duo)",
		TierGold:        "LoL Gold(Solo/Duo)",
		TierPlatinum:    "LoL Platinum(Solo/Duo)",
		TierEmerald:     "LoL Emerald(Solo/Duo)",
		TierDiamond:     "LoL Diamond(Solo/Duo)",
		TierMaster:      "LoL Master(Solo/Duo)",
		TierGrandmaster: "LoL Grandmaster(Solo/Duo)",
		TierChallenger:  "LoL Challenger(Solo/Duo)",
	}
}
