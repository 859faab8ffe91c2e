package astro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func equatorSite() Site {
	lat := 0.0
	lon := 0.0
	return Site{Latitude: &lat, Longitude: &lon}
}

func TestSolarTimes_Equator(t *testing.T) {
	// Given a site on the equator at the prime meridian
	site := equatorSite()

	// When computing solar times (the hour angle is 90 degrees at latitude 0
	// regardless of date)
	times, err := SolarTimes(time.Date(2024, 11, 13, 12, 0, 0, 0, time.UTC), site)
	require.NoError(t, err)

	// Then sunrise is 06:00 and sunset is 18:00 local
	assert.InDelta(t, 6.0, times.SunriseHour, 0.01)
	assert.InDelta(t, 18.0, times.SunsetHour, 0.01)
	assert.False(t, times.PolarNight)
	assert.False(t, times.MidnightSun)
}

func TestResolve_SunsetBoundaryIsCivilTwilight(t *testing.T) {
	site := equatorSite()

	// When now is exactly at the computed sunset
	period := Resolve(time.Date(2024, 11, 13, 18, 0, 0, 0, time.UTC), site)

	// Then the post-sunset side of the boundary is civil twilight
	assert.Equal(t, PeriodCivilTwilight, period)
}

func TestResolve_AfterAstronomicalOffset(t *testing.T) {
	site := equatorSite()

	// More than 1.5 h after sunset
	period := Resolve(time.Date(2024, 11, 13, 19, 36, 0, 0, time.UTC), site)
	assert.Equal(t, PeriodAstronomicalDarkness, period)

	// The band wraps past midnight
	period = Resolve(time.Date(2024, 11, 14, 2, 0, 0, 0, time.UTC), site)
	assert.Equal(t, PeriodAstronomicalDarkness, period)
}

func TestResolve_NauticalBand(t *testing.T) {
	site := equatorSite()

	// Between 1.0 h and 1.5 h after sunset
	period := Resolve(time.Date(2024, 11, 13, 19, 15, 0, 0, time.UTC), site)
	assert.Equal(t, PeriodNauticalTwilight, period)
}

func TestResolve_Daytime(t *testing.T) {
	site := equatorSite()

	period := Resolve(time.Date(2024, 11, 13, 12, 0, 0, 0, time.UTC), site)
	assert.Equal(t, PeriodDaytime, period)
}

func TestResolve_NoLocationIsUnknown(t *testing.T) {
	period := Resolve(time.Now(), Site{})
	assert.Equal(t, PeriodUnknown, period)
}

func TestSolarTimes_PolarNight(t *testing.T) {
	// Given a site well inside the arctic circle in December
	lat := 80.0
	lon := 0.0
	site := Site{Latitude: &lat, Longitude: &lon}

	times, err := SolarTimes(time.Date(2024, 12, 21, 12, 0, 0, 0, time.UTC), site)
	require.NoError(t, err)
	assert.True(t, times.PolarNight)

	// And the period degrades to unknown rather than erroring
	assert.Equal(t, PeriodUnknown, Resolve(time.Date(2024, 12, 21, 12, 0, 0, 0, time.UTC), site))
}

func TestSolarTimes_MidnightSun(t *testing.T) {
	// The same arctic site in June never sees the sun set
	lat := 80.0
	lon := 0.0
	site := Site{Latitude: &lat, Longitude: &lon}

	times, err := SolarTimes(time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC), site)
	require.NoError(t, err)
	assert.True(t, times.MidnightSun)
	assert.InDelta(t, 0.0, times.SunriseHour, 0.001)
	assert.InDelta(t, 23.983, times.SunsetHour, 0.001)
}

func TestSolarTimes_TimezoneAndDST(t *testing.T) {
	lat := 0.0
	lon := 0.0
	site := Site{Latitude: &lat, Longitude: &lon, TimezoneOffset: 2, DSTEnabled: true}

	times, err := SolarTimes(time.Date(2024, 11, 13, 12, 0, 0, 0, time.UTC), site)
	require.NoError(t, err)

	// Offset 2 plus one DST hour shifts both events by 3 hours
	assert.InDelta(t, 9.0, times.SunriseHour, 0.01)
	assert.InDelta(t, 21.0, times.SunsetHour, 0.01)
}

func TestDayBoundaries_TwilightOffsets(t *testing.T) {
	site := equatorSite()

	b, err := DayBoundaries(time.Date(2024, 11, 13, 12, 0, 0, 0, time.UTC), site)
	require.NoError(t, err)

	assert.Equal(t, "06:00", b.Sunrise)
	assert.Equal(t, "18:00", b.Sunset)
	assert.Equal(t, "18:30", b.CivilTwilightEnd)
	assert.Equal(t, "19:00", b.NauticalTwilightEnd)
	assert.Equal(t, "19:30", b.AstronomicalTwilightEnd)
}

func TestDayBoundaries_NoLocation(t *testing.T) {
	_, err := DayBoundaries(time.Now(), Site{})
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestFormatHour_WrapsPastMidnight(t *testing.T) {
	assert.Equal(t, "00:30", FormatHour(24.5))
	assert.Equal(t, "23:30", FormatHour(-0.5))
}
