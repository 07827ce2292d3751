package logger

// LevelWrapper turns a Base into a Logger by adding the per-level helpers.
type LevelWrapper struct {
	base Base
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{base: l}
}

func (w *LevelWrapper) Level() LogLevel {
	return w.base.Level()
}

func (w *LevelWrapper) Log(level LogLevel, msg string, kv ...any) {
	if level < w.base.Level() {
		return
	}

	w.base.Log(level, msg, kv...)
}

func (w *LevelWrapper) With(kv ...any) Logger {
	return &LevelWrapper{base: w.base.With(kv...)}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, kv...)
}
