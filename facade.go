package lokilog

// Package-level entry points write through the global logger (see L), so a
// test runner can log without passing a *Logger around:
//
//	lokilog.Info().Str("suite", "smoke").Msg("start")

func Debug() *Event    { return L().Debug() }
func Info() *Event     { return L().Info() }
func Warning() *Event  { return L().Warning() }
func Error() *Event    { return L().Error() }
func Critical() *Event { return L().Critical() }

// Log emits one record through the global logger.
func Log(level Level, msg string, fs ...Field) { L().Log(level, msg, fs...) }
