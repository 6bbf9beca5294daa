package civic

// Intent is a domain intent a department agent classified a request into
// (e.g. negotiate_schedule, respond_emergency). Each department declares its
// own intent vocabulary; the pipeline treats intents opaquely.
type Intent string
