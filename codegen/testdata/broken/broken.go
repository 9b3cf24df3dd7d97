package broken

type Pair interface {
	Split() (int, int)
}

type Generic[T any] interface {
	Get() T
}
