package record

import (
	"github.com/mickaelmarchal/exifstream/internal/selection"
)

// Project copies the tags surviving selection and exclusion out of the
// raw tag record in to a new output Record. It is a pure function: no
// I/O is performed and well-formed input never causes an error -
// malformed value types degrade via the serializer.
//
// The output is always seeded with the file name and modification time.
// Exclusion wins over selection: a tag named in both never appears in
// the curated output. The FileSize tag is special-cased and always
// sourced from the filesystem stat result, never the parser.
func Project(
	raw TagRecord,
	sel selection.Selection,
	excl Exclusion,
	includeRaw bool,
	fileName string,
	mtime string,
	fileSizeBytes int64,
) Record {
	out := Record{
		FileName: fileName,
		ModTime:  mtime,
		Tags:     make(map[string]any),
	}

	switch sel.Mode() {
	case selection.ModeAll:
		for name, value := range raw {
			if value == nil || excl.Contains(name) {
				continue
			}

			out.Tags[name] = Serialize(value)
		}

		// Stat result wins over whatever the parser reported.
		out.Tags[FileSizeTag] = fileSizeBytes

	case selection.ModeExplicit:
		for _, name := range sel.Tags() {
			if excl.Contains(name) {
				continue
			}

			if name == FileSizeTag {
				out.Tags[FileSizeTag] = fileSizeBytes
				continue
			}

			if value, ok := raw[name]; ok && value != nil {
				out.Tags[name] = Serialize(value)
			}
		}
	}

	if includeRaw {
		// Explicit opt-in for callers who want full access alongside
		// the curated view: every non-nil tag, exclusions NOT applied.
		out.Raw = make(map[string]any, len(raw))
		for name, value := range raw {
			if value == nil {
				continue
			}

			out.Raw[name] = Serialize(value)
		}
	}

	return out
}
