package incident

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Tow status values recognized in the detail chatter.
const (
	TowRequested = "requested"
	TowEnroute   = "enroute"
	TowOnScene   = "on scene"
)

// Facts are best-effort observations parsed from CAD detail lines. Any
// field may be absent; the zero value means nothing was recognized.
type Facts struct {
	Vehicles     int
	VehicleKinds []string
	Lanes        []int
	HOV          bool
	LocLabel     string
	Ramp         string
	Driveable    *bool
	CHPOnScene   bool
	CHPEnroute   bool
	FireOnScene  bool
	Tow          string
	Blocked      bool
	LastTime     string
}

// Dispatch shorthand as it appears in live CAD logs. 97 = on scene,
// 1141 = ambulance, 1185 = tow truck, ENRT = enroute.
var (
	vehicleKinds = []struct {
		re   *regexp.Regexp
		kind string
	}{
		{regexp.MustCompile(`(?i)\bMC\b|MOTORCYCLE`), "motorcycle"},
		{regexp.MustCompile(`(?i)\bSEMI\b|BIG\s*RIG|TRACTOR\s*TRAILER`), "semi"},
		{regexp.MustCompile(`(?i)\bTRK\b|TRUCK\b`), "truck"},
		{regexp.MustCompile(`(?i)\bPK\b|PICK[\s\-]?UP`), "pickup"},
		{regexp.MustCompile(`(?i)\bSUV\b`), "SUV"},
		{regexp.MustCompile(`(?i)\bVAN\b|MINI\s*VAN|MINIVAN`), "van"},
		{regexp.MustCompile(`(?i)\bSEDAN\b`), "sedan"},
	}

	laneRE       = regexp.MustCompile(`#\s*(\d)`)
	hovRE        = regexp.MustCompile(`(?i)\bHOV\b`)
	rightShldRE  = regexp.MustCompile(`(?i)\bRHS?\b|\bR\.?S\b|RIGHT\s+SHOULDER`)
	leftShldRE   = regexp.MustCompile(`(?i)\bLHS?\b|\bL\.?S\b|LEFT\s+SHOULDER`)
	dividerRE    = regexp.MustCompile(`(?i)\bCD\b|CENTER\s+DIVIDER|CENTER\s+DIV`)
	dirtRE       = regexp.MustCompile(`(?i)DIRT\s+AREA`)
	onRampRE     = regexp.MustCompile(`(?i)\bON[-\s]?RAMP\b|\bONR\b`)
	offRampRE    = regexp.MustCompile(`(?i)\bOFF[-\s]?RAMP\b|\bOFFR\b`)
	exitRE       = regexp.MustCompile(`(?i)\bEXIT\b`)
	driveableYRE = regexp.MustCompile(`(?i)\bDRIVE?ABLE\b|\bABLE\s+TO\s+DRIVE`)
	driveableNRE = regexp.MustCompile(`(?i)\bNOT\s+DRIVE?ABLE\b|\bUNDRIVE?ABLE\b`)
	chpOnRE      = regexp.MustCompile(`(?i)\bCHP\b.*\b97\b|\b97\b.*\bCHP\b`)
	chpEnrtRE    = regexp.MustCompile(`(?i)\bCHP\b.*\bENRT?\b|\bENRT?\b.*\bCHP\b`)
	fireRE       = regexp.MustCompile(`(?i)\b1141\b|\bFIRE\b|\bMEDICS?\b|AMBU?LANCE`)
	towReqRE     = regexp.MustCompile(`(?i)\b1185\b.*\b(?:REQ|REQUEST|RQST)\b|\bTOW\b.*(?:REQ|REQUEST|RQST)`)
	towEnrRE     = regexp.MustCompile(`(?i)\b1185\b.*\bENRT?\b`)
	towOnRE      = regexp.MustCompile(`(?i)\b1185\b.*\b97\b`)
	blockRE      = regexp.MustCompile(`(?i)\bBLOCK(?:ING|ED)?\b|LANES?\s+BLOCK(?:ED|ING)`)
	timeHintRE   = regexp.MustCompile(`(?i)^\s*([0-9]{1,2}:[0-9]{2}\s*(?:AM|PM))\b`)
	vehCountRE   = regexp.MustCompile(`(?i)\b(\d+)\s*(?:VEH|VEHS|VEHICLES|CARS|TCS?)\b`)

	// Phrases implying a second vehicle even without an explicit count.
	atLeastTwoRE = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bVS\b`),
		regexp.MustCompile(`(?i)\bX\b`),
		regexp.MustCompile(`(?i)\b2(?:ND)?\s+VEH\b`),
		regexp.MustCompile(`(?i)\bBOTH\s+VEH`),
	}
)

// ParseFacts scans detail lines for dispatch shorthand. Recognition is
// best effort; unrecognized chatter is ignored.
func ParseFacts(lines []string) Facts {
	var f Facts
	kinds := map[string]bool{}
	lanes := map[int]bool{}
	vehCount := 0
	atLeastTwo := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := timeHintRE.FindStringSubmatch(line); m != nil {
			f.LastTime = m[1]
		}
		for _, vk := range vehicleKinds {
			if vk.re.MatchString(line) {
				kinds[vk.kind] = true
			}
		}
		if m := vehCountRE.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > vehCount {
				vehCount = n
			}
		}
		if !atLeastTwo {
			for _, re := range atLeastTwoRE {
				if re.MatchString(line) {
					atLeastTwo = true
					break
				}
			}
		}
		for _, m := range laneRE.FindAllStringSubmatch(line, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				lanes[n] = true
			}
		}
		if hovRE.MatchString(line) {
			f.HOV = true
		}
		switch {
		case rightShldRE.MatchString(line):
			f.LocLabel = "right shoulder"
		case leftShldRE.MatchString(line):
			f.LocLabel = "left shoulder"
		case dividerRE.MatchString(line):
			f.LocLabel = "center divider"
		case dirtRE.MatchString(line):
			f.LocLabel = "dirt shoulder"
		}
		switch {
		case onRampRE.MatchString(line):
			f.Ramp = "on-ramp"
		case offRampRE.MatchString(line):
			f.Ramp = "off-ramp"
		case exitRE.MatchString(line):
			f.Ramp = "exit"
		}
		// Negative form first so "NOT DRIVABLE" is not read as driveable.
		if driveableNRE.MatchString(line) {
			no := false
			f.Driveable = &no
		} else if driveableYRE.MatchString(line) {
			yes := true
			f.Driveable = &yes
		}
		if chpOnRE.MatchString(line) {
			f.CHPOnScene = true
		} else if chpEnrtRE.MatchString(line) {
			f.CHPEnroute = true
		}
		if fireRE.MatchString(line) {
			f.FireOnScene = true
		}
		switch {
		case towOnRE.MatchString(line):
			f.Tow = TowOnScene
		case towEnrRE.MatchString(line) && f.Tow != TowOnScene:
			f.Tow = TowEnroute
		case towReqRE.MatchString(line) && f.Tow != TowOnScene && f.Tow != TowEnroute:
			f.Tow = TowRequested
		}
		if blockRE.MatchString(line) {
			f.Blocked = true
		}
	}

	if vehCount == 0 && atLeastTwo {
		vehCount = 2
	}
	f.Vehicles = vehCount
	for k := range kinds {
		f.VehicleKinds = append(f.VehicleKinds, k)
	}
	sort.Strings(f.VehicleKinds)
	for n := range lanes {
		f.Lanes = append(f.Lanes, n)
	}
	sort.Ints(f.Lanes)
	return f
}

// Summary renders the facts as one compact line, empty when nothing was
// recognized.
func (f Facts) Summary() string {
	var bits []string
	switch {
	case f.Vehicles > 0 && len(f.VehicleKinds) > 0:
		bits = append(bits, fmt.Sprintf("%d veh (%s)", f.Vehicles, strings.Join(f.VehicleKinds, ", ")))
	case f.Vehicles > 0:
		bits = append(bits, fmt.Sprintf("%d veh", f.Vehicles))
	case len(f.VehicleKinds) > 0:
		bits = append(bits, strings.Join(f.VehicleKinds, " / "))
	}

	var where []string
	if f.Ramp != "" {
		where = append(where, f.Ramp)
	}
	if f.LocLabel != "" {
		where = append(where, f.LocLabel)
	}
	if lanes := CompactLanes(f.Lanes); lanes != "" {
		label := "lanes "
		if len(f.Lanes) == 1 {
			label = "lane "
		}
		where = append(where, label+lanes)
	}
	if f.HOV {
		where = append(where, "HOV")
	}
	if len(where) > 0 {
		bits = append(bits, strings.Join(where, ", "))
	}

	if f.Blocked {
		bits = append(bits, "blocking")
	}
	if f.Driveable != nil {
		if *f.Driveable {
			bits = append(bits, "driveable")
		} else {
			bits = append(bits, "not driveable")
		}
	}
	if f.Tow != "" {
		tow := "tow " + f.Tow
		if f.LastTime != "" {
			tow += " (" + strings.ToLower(f.LastTime) + ")"
		}
		bits = append(bits, tow)
	}
	if f.CHPOnScene {
		bits = append(bits, "CHP on scene")
	} else if f.CHPEnroute {
		bits = append(bits, "CHP enroute")
	}
	if f.FireOnScene {
		bits = append(bits, "fire/medics on scene")
	}
	return strings.Join(bits, ", ")
}

// CompactLanes renders lane numbers as spans, e.g. "#1, #3-#5".
func CompactLanes(lanes []int) string {
	if len(lanes) == 0 {
		return ""
	}
	nums := append([]int(nil), lanes...)
	sort.Ints(nums)

	var spans []string
	a, b := nums[0], nums[0]
	for _, n := range nums[1:] {
		if n == b+1 {
			b = n
			continue
		}
		spans = append(spans, laneSpan(a, b))
		a, b = n, n
	}
	spans = append(spans, laneSpan(a, b))
	return strings.Join(spans, ", ")
}

func laneSpan(a, b int) string {
	if a == b {
		return fmt.Sprintf("#%d", a)
	}
	return fmt.Sprintf("#%d-#%d", a, b)
}
