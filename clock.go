// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import "time"

// Clock supplies the current time. A bucket captures an origin from its clock when it is built and
// does all refill arithmetic on the elapsed time since then, so implementations should return
// times carrying a monotonic reading, as time.Now does.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the Clock used unless Builder.Clock overrides it.
var SystemClock Clock = systemClock{}
