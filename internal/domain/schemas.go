package domain

import "github.com/ratekl/api/internal/schema"

// Entity type names.
const (
	EntityAppData   = "AppData"
	EntityAppMember = "AppMember"
	EntityAppInfo   = "AppInfo"
)

var timestamps = []schema.Field{
	{Name: "createdAt", Type: schema.Date, Indexed: true},
	{Name: "updatedAt", Type: schema.Date, Indexed: true},
}

// AppDataSchema describes AppData.
var AppDataSchema = schema.Descriptor{
	Name:    EntityAppData,
	IDField: "name",
	Fields: append([]schema.Field{
		{Name: "type", Type: schema.String, Indexed: true},
		{Name: "access", Type: schema.String, Indexed: true},
		{Name: "owner", Type: schema.String, Indexed: true},
		{Name: "data", Type: schema.Object},
	}, timestamps...),
	Relations: []schema.Relation{
		{Name: "ownerMember", Kind: schema.BelongsTo, Target: EntityAppMember, KeyFrom: "owner", KeyTo: "userName"},
	},
	Settings: schema.Settings{Strict: true},
}

// AppMemberSchema describes AppMember.
var AppMemberSchema = schema.Descriptor{
	Name:    EntityAppMember,
	IDField: "userName",
	Fields: append([]schema.Field{
		{Name: "password", Type: schema.String},
		{Name: "firstName", Type: schema.String, Indexed: true},
		{Name: "lastName", Type: schema.String, Indexed: true},
		{Name: "preferredName", Type: schema.String, Indexed: true},
		{Name: "role", Type: schema.String, Indexed: true},
		{Name: "email", Type: schema.String, Indexed: true},
		{Name: "phone", Type: schema.String, Indexed: true},
		{Name: "memberData", Type: schema.Object},
	}, timestamps...),
	Relations: []schema.Relation{
		{Name: "posts", Kind: schema.HasMany, Target: EntityAppData, KeyFrom: "userName", KeyTo: "owner"},
	},
	Settings: schema.Settings{Strict: true},
}

// AppInfoSchema describes AppInfo.
var AppInfoSchema = schema.Descriptor{
	Name:    EntityAppInfo,
	IDField: "name",
	Fields: []schema.Field{
		{Name: "published", Type: schema.Boolean, Default: false},
		{Name: "draft", Type: schema.Boolean, Default: true},
		{Name: "previous", Type: schema.Boolean, Default: false},
		{Name: "history", Type: schema.Boolean, Default: false},
		{Name: "publishedDate", Type: schema.Date},
		{Name: "info", Type: schema.Object},
	},
	Settings: schema.Settings{Strict: true},
}

var registry = mustRegistry(AppDataSchema, AppMemberSchema, AppInfoSchema)

// Schemas returns the registry of tenant content descriptors.
func Schemas() *schema.Registry { return registry }

func mustRegistry(descriptors ...schema.Descriptor) *schema.Registry {
	reg, err := schema.NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return reg
}
