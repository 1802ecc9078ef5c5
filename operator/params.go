package operator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arloliu/sirius/config"
	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/section"
)

// Params is the string-keyed configuration handed over by the host.
// Unknown keys are ignored.
type Params map[string]string

// Recognized parameter keys.
const (
	ParamTiers        = "tiers"          // required, number of tiers in [1, 65535]
	ParamPlacement    = "placement"      // roundrobin (default) or split
	ParamAdvance      = "advance"        // call (default) or step
	ParamShuffle      = "shuffle"        // byte shuffle before the codec, default false
	ParamCodec        = "codec"          // none (default), zstd, s2 or lz4
	ParamTierCodec    = "codec."         // prefix of per-tier codec overrides, e.g. codec.0
	ParamMaxTierBytes = "max_tier_bytes" // per-tier byte ceiling, e.g. 64MB; 0 means none
)

// Settings is the validated form of Params.
type Settings struct {
	TierCount    int
	Placement    format.PlacementPolicy
	Advance      format.AdvancePolicy
	Shuffle      bool
	Codec        format.CompressionType
	TierCodecs   map[int]format.CompressionType
	MaxTierBytes int
}

// CodecFor returns the codec used for segments written to tier.
func (s Settings) CodecFor(tier int) format.CompressionType {
	if ct, ok := s.TierCodecs[tier]; ok {
		return ct
	}

	return s.Codec
}

// ParseSettings validates p.
//
// A missing or invalid tier count yields errs.ErrTierConfiguration; any other
// malformed value yields errs.ErrInvalidParameter.
func ParseSettings(p Params) (Settings, error) {
	raw, ok := p[ParamTiers]
	if !ok || strings.TrimSpace(raw) == "" {
		return Settings{}, fmt.Errorf("%w: parameter %q is required", errs.ErrTierConfiguration, ParamTiers)
	}
	tiers, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || tiers < 1 || tiers > section.MaxSegments {
		return Settings{}, fmt.Errorf("%w: %s=%q must be an integer in [1, %d]", errs.ErrTierConfiguration, ParamTiers, raw, section.MaxSegments)
	}

	s := Settings{TierCount: tiers}

	if s.Placement, err = format.ParsePlacementPolicy(p[ParamPlacement]); err != nil {
		return Settings{}, err
	}
	if s.Advance, err = format.ParseAdvancePolicy(p[ParamAdvance]); err != nil {
		return Settings{}, err
	}
	if s.Codec, err = format.ParseCompressionType(p[ParamCodec]); err != nil {
		return Settings{}, err
	}

	if v := strings.TrimSpace(p[ParamShuffle]); v != "" {
		if s.Shuffle, err = strconv.ParseBool(v); err != nil {
			return Settings{}, fmt.Errorf("%w: %s=%q", errs.ErrInvalidParameter, ParamShuffle, v)
		}
	}

	if v := strings.TrimSpace(p[ParamMaxTierBytes]); v != "" {
		n, err := config.ParseByteSize(v)
		if err != nil || n > math.MaxInt {
			return Settings{}, fmt.Errorf("%w: %s=%q", errs.ErrInvalidParameter, ParamMaxTierBytes, v)
		}
		s.MaxTierBytes = int(n)
	}

	for k, v := range p {
		idx, found := strings.CutPrefix(k, ParamTierCodec)
		if !found {
			continue
		}
		tier, err := strconv.Atoi(idx)
		if err != nil || tier < 0 || tier >= tiers {
			return Settings{}, fmt.Errorf("%w: %q does not name a tier in [0, %d)", errs.ErrInvalidParameter, k, tiers)
		}
		ct, err := format.ParseCompressionType(v)
		if err != nil {
			return Settings{}, err
		}
		if s.TierCodecs == nil {
			s.TierCodecs = make(map[int]format.CompressionType)
		}
		s.TierCodecs[tier] = ct
	}

	return s, nil
}
