// Package astro approximates solar event times and twilight periods.
//
// The model is the same low-precision geometric approximation the capture
// gating has always used: declination from day-of-year, hour angle from
// latitude and declination, fixed offsets for the twilight stages. It is good
// to a few minutes, which is plenty for deciding whether to open the shutter.
package astro

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Period is the twilight period the site is currently in.
type Period int

const (
	PeriodUnknown Period = iota
	PeriodDaytime
	PeriodCivilTwilight
	PeriodNauticalTwilight
	PeriodAstronomicalDarkness
)

func (p Period) String() string {
	switch p {
	case PeriodDaytime:
		return "daytime"
	case PeriodCivilTwilight:
		return "civil_twilight"
	case PeriodNauticalTwilight:
		return "nautical_twilight"
	case PeriodAstronomicalDarkness:
		return "astronomical_darkness"
	default:
		return "unknown"
	}
}

// Site is the observing location. Latitude and Longitude are nil until the
// user has configured them; without a location every period resolves to
// PeriodUnknown.
type Site struct {
	Latitude       *float64
	Longitude      *float64
	TimezoneOffset float64
	DSTEnabled     bool
}

// Offsets, in hours after sunset (and before sunrise), at which each twilight
// stage ends.
const (
	civilOffsetHours        = 0.5
	nauticalOffsetHours     = 1.0
	astronomicalOffsetHours = 1.5
)

// ErrNoLocation is returned when the site has no configured coordinates.
var ErrNoLocation = errors.New("location not set")

// Times holds the computed solar event times for one day, as fractional local
// hours in [0, 24).
type Times struct {
	SunriseHour float64
	SunsetHour  float64
	PolarNight  bool
	MidnightSun bool
}

// SolarTimes computes local sunrise and sunset for the date of now.
func SolarTimes(now time.Time, site Site) (Times, error) {
	if site.Latitude == nil || site.Longitude == nil {
		return Times{}, ErrNoLocation
	}
	lat := *site.Latitude
	lon := *site.Longitude

	dayOfYear := float64(now.YearDay())
	declination := 23.45 * math.Sin(radians((360.0/365.0)*(dayOfYear-81)))

	cosHourAngle := -math.Tan(radians(lat)) * math.Tan(radians(declination))
	if cosHourAngle > 1 {
		// Sun never rises today.
		return Times{PolarNight: true}, nil
	}
	if cosHourAngle < -1 {
		// Sun never sets today.
		return Times{SunriseHour: 0, SunsetHour: 23 + 59.0/60.0, MidnightSun: true}, nil
	}

	hourAngle := degrees(math.Acos(cosHourAngle))
	solarNoon := 12.0 - lon/15.0

	tzOffset := site.TimezoneOffset
	if site.DSTEnabled {
		tzOffset++
	}

	sunrise := normalizeHour(solarNoon - hourAngle/15.0 + tzOffset)
	sunset := normalizeHour(solarNoon + hourAngle/15.0 + tzOffset)
	return Times{SunriseHour: sunrise, SunsetHour: sunset}, nil
}

// Resolve returns the twilight period the site is in at now.
//
// The night bands are nested, so they are tested darkest first: astronomical
// darkness wins even though any instant inside it is also inside the nautical
// and civil bands. The civil band starts exactly at sunset, making the
// post-sunset boundary inclusive.
func Resolve(now time.Time, site Site) Period {
	times, err := SolarTimes(now, site)
	if err != nil || times.PolarNight {
		return PeriodUnknown
	}

	h := hourOfDay(now)
	sunrise := times.SunriseHour
	sunset := times.SunsetHour

	switch {
	case inWrappedBand(h, sunset+astronomicalOffsetHours, sunrise-astronomicalOffsetHours):
		return PeriodAstronomicalDarkness
	case inWrappedBand(h, sunset+nauticalOffsetHours, sunrise-nauticalOffsetHours):
		return PeriodNauticalTwilight
	case inWrappedBand(h, sunset, sunrise):
		return PeriodCivilTwilight
	default:
		return PeriodDaytime
	}
}

// Boundaries are the day's solar event times formatted as HH:MM local time.
// The twilight fields are the evening end times of each stage.
type Boundaries struct {
	Sunrise                 string
	Sunset                  string
	CivilTwilightEnd        string
	NauticalTwilightEnd     string
	AstronomicalTwilightEnd string
	MidnightSun             bool
}

// DayBoundaries formats the solar event times for the date of now.
// Returns ErrNoLocation when no coordinates are configured and an error when
// the sun does not rise at all (polar night).
func DayBoundaries(now time.Time, site Site) (Boundaries, error) {
	times, err := SolarTimes(now, site)
	if err != nil {
		return Boundaries{}, err
	}
	if times.PolarNight {
		return Boundaries{}, errors.New("sun does not rise at this location today")
	}
	return Boundaries{
		Sunrise:                 FormatHour(times.SunriseHour),
		Sunset:                  FormatHour(times.SunsetHour),
		CivilTwilightEnd:        FormatHour(times.SunsetHour + civilOffsetHours),
		NauticalTwilightEnd:     FormatHour(times.SunsetHour + nauticalOffsetHours),
		AstronomicalTwilightEnd: FormatHour(times.SunsetHour + astronomicalOffsetHours),
		MidnightSun:             times.MidnightSun,
	}, nil
}

// FormatHour renders a fractional hour as HH:MM, wrapping past midnight.
func FormatHour(hour float64) string {
	hour = normalizeHour(hour)
	h := int(hour)
	m := int((hour - float64(h)) * 60)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// inWrappedBand reports whether h lies in [start, end), where the band may
// wrap past midnight. Inclusive at start so the instant of a boundary belongs
// to the darker side.
func inWrappedBand(h, start, end float64) bool {
	start = normalizeHour(start)
	end = normalizeHour(end)
	if start <= end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0
}

func normalizeHour(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
