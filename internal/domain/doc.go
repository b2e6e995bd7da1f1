// Package domain models landslide event points and the IMERG rainfall samples
// extracted around them.
//
// # Data Source
//
// Rainfall comes from NASA GPM IMERG (collection "NASA/GPM_L3/IMERG_V06" in the
// Earth Engine catalog). Each image covers one half-hour step and carries the
// calibrated precipitation estimate in the "precipitationCal" band, in mm/hr.
// An 11-day window therefore holds up to 528 images per point.
//
// # Point Conventions
//
// Landslide points are recorded with separate day, month and year attributes:
//
//	ID   DD  MM  YYYY  geometry
//	1    5   3   2018  POINT(110.25 -7.48)
//
// The event date is rebuilt as "YYYY-MM-DD" with zero-padded month and day and
// parsed in UTC. Impossible dates (31 April) are rejected by the parser and the
// point is skipped. Coordinates are WGS-84 longitude/latitude.
//
// # Query Window
//
//	start = event date - 10 days (inclusive)
//	end   = event date + 1 day   (exclusive)
//
// An image stamped exactly at end is excluded; one stamped at start 00:00 is kept.
//
// # Output Rows
//
// Every retained image yields exactly one row, even when the point falls outside
// the image footprint. The value is then empty rather than omitted:
//
//	coord_id,lon,lat,date,value
//	1,110.25,-7.48,2018-02-23 13:30,0.52
//	1,110.25,-7.48,2018-02-23 14:00,
//
// Dates are rendered in UTC. The default layout is 24-hour; the legacy layout
// reproduces the earlier 12-hour export format without an AM/PM marker, which makes
// 01:30 and 13:30 indistinguishable. See [DateLayout].
package domain
