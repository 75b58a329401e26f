package profiles

// Field selects one editable attribute of a Profile.
type Field int

const (
	FieldName Field = iota
	FieldDisplayName
	FieldAvatar
	FieldColour
)

type fieldSpec struct {
	name      string
	aliases   []string
	get       func(Profile) string
	set       func(*Profile, string)
	normalize func(string) string
}

var fieldSpecs = map[Field]fieldSpec{
	FieldName: {
		name:    "name",
		aliases: []string{"name", "n"},
		get:     func(p Profile) string { return p.Name },
		set:     func(p *Profile, v string) { p.Name = v },
	},
	FieldDisplayName: {
		name:    "display_name",
		aliases: []string{"display_name", "display", "d"},
		get:     func(p Profile) string { return p.DisplayName },
		set:     func(p *Profile, v string) { p.DisplayName = v },
	},
	FieldAvatar: {
		name:    "avatar",
		aliases: []string{"avatar", "pfp", "a"},
		get:     func(p Profile) string { return p.Avatar },
		set:     func(p *Profile, v string) { p.Avatar = v },
	},
	FieldColour: {
		name:      "colour",
		aliases:   []string{"colour", "color", "c"},
		get:       func(p Profile) string { return p.Colour },
		set:       func(p *Profile, v string) { p.Colour = v },
		normalize: ParseColours,
	},
}

var fieldsByAlias = func() map[string]Field {
	m := make(map[string]Field)
	for f, spec := range fieldSpecs {
		for _, a := range spec.aliases {
			m[a] = f
		}
	}
	return m
}()

// LookupField maps a command word such as "pfp" or "color" to its field.
func LookupField(command string) (Field, bool) {
	f, ok := fieldsByAlias[command]
	return f, ok
}

func (f Field) String() string {
	return fieldSpecs[f].name
}

// Get returns the current value, "" when unset.
func (f Field) Get(p Profile) string {
	return fieldSpecs[f].get(p)
}

// Set stores value after field-specific normalisation. An empty value
// clears optional fields; clearing the name keeps the current name.
func (f Field) Set(p *Profile, value string) {
	spec := fieldSpecs[f]
	if value != "" && spec.normalize != nil {
		value = spec.normalize(value)
	}
	if f == FieldName && value == "" {
		return
	}
	spec.set(p, value)
}
