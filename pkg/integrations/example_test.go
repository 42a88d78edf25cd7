package integrations_test

import (
	"fmt"

	"github.com/matzehuels/ogloc/pkg/integrations"
)

func ExamplePathEscape() {
	fmt.Println(integrations.PathEscape("serde"))
	fmt.Println(integrations.PathEscape("a/b"))
	// Output:
	// serde
	// a%2Fb
}
