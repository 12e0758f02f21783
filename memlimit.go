package main

import (
	"math"
	"os"
	"strconv"
)

// memLimit bounds both the size of an unwrapped input and the in-memory result cache
var memLimit int = calcMemLimit()

const typicalEntry = 256 * 1024 // rebuilt executable plus articles

func calcMemLimit() int {
	if e := os.Getenv("UNSFXMB"); e != "" {
		f, err := strconv.ParseFloat(e, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
			panic("malformed UNSFXMB environment variable, should be a number of megabytes: " + e)
		}
		return int(f * 1024 * 1024)
	}
	return 256 * 1024 * 1024 // fall back on 256MiB
}

func cacheEntries() int {
	return max(memLimit/typicalEntry, 16)
}
