package catalog

import "github.com/steelcutops/cmdsql/cmdsql/columnar"

func utf8(name string) columnar.Field {
	return columnar.Field{Name: name, Type: columnar.Utf8, Nullable: true}
}

func int64f(name string) columnar.Field {
	return columnar.Field{Name: name, Type: columnar.Int64, Nullable: true}
}

func float64f(name string) columnar.Field {
	return columnar.Field{Name: name, Type: columnar.Float64, Nullable: true}
}

// Builtin returns the tables shipped with cmdsql. Column names follow the
// keys emitted by the corresponding jc parser.
func Builtin() []CommandSpec {
	return []CommandSpec{
		{
			Name:     "ps",
			Argv:     []string{"ps", "aux"},
			ParserID: "ps",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("user"),
				int64f("pid"),
				int64f("vsz"),
				int64f("rss"),
				utf8("tt"),
				utf8("stat"),
				utf8("started"),
				utf8("time"),
				utf8("command"),
				float64f("cpu_percent"),
				float64f("mem_percent"),
			),
		},
		{
			Name:     "uptime",
			Argv:     []string{"uptime"},
			ParserID: "uptime",
			Shape:    Single,
			Schema: columnar.NewSchema(
				utf8("uptime"),
				int64f("users"),
				float64f("load_1m"),
				float64f("load_5m"),
				float64f("load_15m"),
				int64f("time_hour"),
				int64f("time_minute"),
				int64f("time_second"),
				int64f("uptime_days"),
				int64f("uptime_hours"),
				int64f("uptime_minutes"),
				int64f("uptime_total_seconds"),
			),
		},
		{
			Name:     "who",
			Argv:     []string{"who", "-a"},
			ParserID: "who",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("user"),
				utf8("event"),
				utf8("tty"),
				utf8("time"),
				int64f("epoch"),
			),
		},
		{
			Name:     "df",
			Argv:     []string{"df"},
			ParserID: "df",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("filesystem"),
				int64f("1k_blocks"),
				int64f("used"),
				int64f("available"),
				int64f("use_percent"),
				utf8("mounted_on"),
			),
		},
		{
			Name:     "free",
			Argv:     []string{"free"},
			ParserID: "free",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("type"),
				int64f("total"),
				int64f("used"),
				int64f("free"),
				int64f("shared"),
				int64f("buff_cache"),
				int64f("available"),
			),
		},
		{
			// Paths are supplied at the call site: stat('/etc/hosts').
			Name:     "stat",
			Argv:     []string{"stat"},
			ParserID: "stat",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("file"),
				utf8("link_to"),
				int64f("size"),
				int64f("blocks"),
				int64f("io_blocks"),
				utf8("type"),
				utf8("device"),
				int64f("inode"),
				int64f("links"),
				utf8("access"),
				utf8("flags"),
				int64f("uid"),
				utf8("user"),
				int64f("gid"),
				utf8("group"),
				utf8("access_time"),
				utf8("modify_time"),
				utf8("change_time"),
				int64f("access_time_epoch"),
				int64f("modify_time_epoch"),
				int64f("change_time_epoch"),
			),
		},
		{
			Name:     "env",
			Argv:     []string{"env"},
			ParserID: "env",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("name"),
				utf8("value"),
			),
		},
		{
			Name:     "systemctl",
			Argv:     []string{"systemctl", "-a"},
			ParserID: "systemctl",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("unit"),
				utf8("load"),
				utf8("active"),
				utf8("sub"),
				utf8("description"),
			),
		},
		{
			Name:     "dpkg",
			Argv:     []string{"dpkg", "-l"},
			ParserID: "dpkg-l",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("codes"),
				utf8("name"),
				utf8("version"),
				utf8("architecture"),
				utf8("description"),
				utf8("desired"),
				utf8("status"),
			),
		},
		{
			Name:     "passwd",
			Argv:     []string{"cat", "/etc/passwd"},
			ParserID: "passwd",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("username"),
				utf8("password"),
				int64f("uid"),
				int64f("gid"),
				utf8("comment"),
				utf8("home"),
				utf8("shell"),
			),
		},
		{
			Name:     "mount",
			Argv:     []string{"mount"},
			ParserID: "mount",
			Shape:    Array,
			Schema: columnar.NewSchema(
				utf8("filesystem"),
				utf8("mount_point"),
				utf8("type"),
				utf8("options"),
			),
		},
		{
			// Target is supplied at the call site: ping('10.0.0.1').
			Name:     "ping",
			Argv:     []string{"ping", "-c", "3"},
			ParserID: "ping",
			Shape:    Single,
			Schema: columnar.NewSchema(
				utf8("destination_ip"),
				utf8("destination"),
				int64f("data_bytes"),
				int64f("packets_transmitted"),
				int64f("packets_received"),
				float64f("packet_loss_percent"),
				int64f("duplicates"),
				float64f("round_trip_ms_min"),
				float64f("round_trip_ms_avg"),
				float64f("round_trip_ms_max"),
				float64f("round_trip_ms_stddev"),
			),
		},
	}
}

// Default returns a registry holding the builtin tables.
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}
