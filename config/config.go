package config

type Config struct {
	Log   Log
	Synth Synth
	Match Match
}

type Log struct {
	Level string
	Mode  string
}

type Synth struct {
	SettingsFile string
}

type Match struct {
	ParameterName string
	Force         bool
}
