package remotes

// ProductItems is the demo catalogue of the products remote.
var ProductItems = []Item{
	{ID: "p-100", Name: "Laptop stand", Price: 39.9},
	{ID: "p-200", Name: "USB-C dock", Price: 129},
	{ID: "p-300", Name: "Noise-cancelling headset", Price: 199},
}

// OrderItems is the demo order history of the orders remote.
var OrderItems = []Item{
	{ID: "o-1", Name: "Order #1 (2 items)"},
	{ID: "o-2", Name: "Order #2 (1 item)"},
}
