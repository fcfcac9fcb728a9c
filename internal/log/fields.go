package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldRunID      = "run_id"
	FieldCategory   = "category"
	FieldSkipReason = "skip_reason"
	FieldWindowSize = "window_size"
	FieldPrediction = "prediction"
	FieldLoss       = "loss"
	FieldEntries    = "entries"
	FieldIgnored    = "ignored_entries"
	FieldCategories = "categories"
	FieldGeneration = "generation"
	FieldParamsKey  = "params_key"
	FieldEntryID    = "entry_id"
	FieldEntryKind  = "entry_kind"
	FieldBackend    = "backend"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentInsights = "insights"
	ComponentForecast = "forecast"
	ComponentEntries  = "entries"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentHub      = "hub"
	ComponentBackend  = "backend"
	ComponentSeed     = "seed"
)

// Operations defines standard operation names
const (
	OpPublish = "publish"
	OpConsume = "consume"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEntry adds the identifying fields of a stored entry.
func (f LogFields) WithEntry(id, kind string) LogFields {
	f[FieldEntryID] = id
	f[FieldEntryKind] = kind
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog. The component key is left
// out since Logger adds its own.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		if k == FieldComponent {
			continue
		}
		slice = append(slice, k, v)
	}
	return slice
}
