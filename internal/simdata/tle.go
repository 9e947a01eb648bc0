package simdata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// ErrInvalidTLE reports a malformed element-set file.
var ErrInvalidTLE = errors.New("invalid TLE data")

// Published element sets are fixed-width 69-column lines.
const tleLineLen = 69

// TLEEntry is one published element set: an optional satellite name and the
// two data lines.
type TLEEntry struct {
	Name  string
	Line1 string
	Line2 string
}

// ReadTLE parses two- or three-line element sets from r: an optional name
// line followed by the "1 "/"2 " data lines. Blank lines between sets are
// ignored.
func ReadTLE(r io.Reader) ([]TLEEntry, error) {
	var (
		entries []TLEEntry
		name    string
		line1   string
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "1 "):
			if line1 != "" {
				return nil, fmt.Errorf("%w: consecutive line-1 entries", ErrInvalidTLE)
			}
			if len(line) < tleLineLen {
				return nil, fmt.Errorf("%w: short line %q", ErrInvalidTLE, line)
			}
			line1 = line
		case strings.HasPrefix(line, "2 "):
			if line1 == "" {
				return nil, fmt.Errorf("%w: line 2 before line 1", ErrInvalidTLE)
			}
			if len(line) < tleLineLen {
				return nil, fmt.Errorf("%w: short line %q", ErrInvalidTLE, line)
			}
			entries = append(entries, TLEEntry{Name: name, Line1: line1, Line2: line})
			name, line1 = "", ""
		default:
			name = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read TLE: %w", err)
	}
	if line1 != "" {
		return nil, fmt.Errorf("%w: unpaired line 1 at end of input", ErrInvalidTLE)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no element sets found", ErrInvalidTLE)
	}
	return entries, nil
}

// catalogNumber extracts the NORAD catalog number field from data line 1.
func catalogNumber(line1 string) string {
	if len(line1) < 7 {
		return ""
	}
	return strings.TrimSpace(line1[2:7])
}

// orbiter propagates one satellite from a synthesized TLE.
type orbiter struct {
	id  string
	sat satellite.Satellite
}

func newOrbiter(id, line1, line2 string) orbiter {
	return orbiter{id: id, sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}
}

// positionECEF propagates the satellite to t and returns its Earth-fixed
// position. go-satellite works in kilometres throughout.
func (o orbiter) positionECEF(t time.Time) Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// tleLines renders a syntactically valid two-line element set for a
// near-circular orbit. Drag and ballistic terms are fixed nominal values;
// the orbit is fully described by inclination, RAAN, eccentricity,
// argument of perigee, mean anomaly and mean motion.
func tleLines(catnum int, intlDesig string, epoch time.Time, inclDeg, raanDeg float64, eccE7 int, argpDeg, meanAnomDeg, meanMotion float64) (string, string) {
	epoch = epoch.UTC()
	yy := epoch.Year() % 100
	secondsIntoDay := float64(epoch.Hour())*3600 + float64(epoch.Minute())*60 +
		float64(epoch.Second()) + float64(epoch.Nanosecond())/1e9
	epochDays := float64(epoch.YearDay()) + secondsIntoDay/86400

	line1 := fmt.Sprintf("1 %05dU %-8s %02d%012.8f  .00000010  00000-0  10000-4 0  999",
		catnum, intlDesig, yy, epochDays)
	line2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		catnum, inclDeg, raanDeg, eccE7, argpDeg, meanAnomDeg, meanMotion, 1234)

	return line1 + tleChecksum(line1), line2 + tleChecksum(line2)
}

// tleChecksum computes the final column of a TLE line: the sum of all
// digits plus one per minus sign, modulo 10.
func tleChecksum(line string) string {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return fmt.Sprintf("%d", sum%10)
}
