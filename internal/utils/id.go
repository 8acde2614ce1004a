package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIdAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func GenerateNanoId(length int) string {
	id, err := gonanoid.Generate(nanoIdAlphabet, length)
	if err != nil {
		// the alphabet is valid, so Generate only fails if the system RNG does
		panic(err)
	}
	return id
}

func GenerateNanoIdWithPrefix(prefix string, length int) string {
	return fmt.Sprintf("%s_%s", prefix, GenerateNanoId(length))
}
