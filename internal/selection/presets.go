package selection

// Presets are fixed, themed bundles of EXIF tag names. They are defined
// once at process start and never mutated; configuration refers to them
// by their short identifier.
var Presets = map[string][]string{
	"basic": {
		"Make",
		"Model",
		"DateTimeOriginal",
		"ExposureTime",
		"FNumber",
		"ISO",
		"FocalLength",
	},
	"camera": {
		"Make",
		"Model",
		"LensMake",
		"LensModel",
		"LensInfo",
		"SerialNumber",
		"Software",
	},
	"exposure": {
		"ExposureTime",
		"ShutterSpeedValue",
		"FNumber",
		"ApertureValue",
		"ISO",
		"ExposureCompensation",
		"ExposureProgram",
		"ExposureMode",
		"MeteringMode",
		"Flash",
		"WhiteBalance",
		"FocalLength",
		"FocalLengthIn35mmFormat",
	},
	"datetime": {
		"DateTimeOriginal",
		"CreateDate",
		"ModifyDate",
		"OffsetTime",
		"OffsetTimeOriginal",
		"OffsetTimeDigitized",
	},
	"location": {
		"GPSLatitude",
		"GPSLatitudeRef",
		"GPSLongitude",
		"GPSLongitudeRef",
		"GPSAltitude",
		"GPSAltitudeRef",
		"GPSDateStamp",
		"GPSTimeStamp",
	},
	"technical": {
		"ImageWidth",
		"ImageHeight",
		"Orientation",
		"ColorSpace",
		"BitsPerSample",
		"XResolution",
		"YResolution",
		"ResolutionUnit",
		"Megapixels",
	},
	"metadata": {
		"Artist",
		"Copyright",
		"ImageDescription",
		"UserComment",
		"Rating",
		"Keywords",
		"Subject",
	},
}
