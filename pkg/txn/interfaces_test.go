package txn

//go:generate mockgen -source=interfaces_test.go -destination=mocks_test.go -package=txn

type resource interface {
	Resource
}

type synchronization interface {
	Synchronization
}
