package vm

import "testing"

func TestArrayIntrinsics(t *testing.T) {
	expectOutput(t, `
		let a = [1, 2];
		a.push(3, 4);
		print(a);
		print(a.pop());
		print(a.shift());
		a.unshift(0);
		print(a);
	`, "[1, 2, 3, 4]\n4\n1\n[0, 2, 3]\n")

	expectOutput(t, `
		let a = [3, 1, 2];
		print(a.contains(2), a.contains(9));
		print(a.find(1), a.find(9));
		print(a.first(), a.last());
	`, "true false\n1 -1\n3 2\n")

	expectOutput(t, `
		let a = [1, 2, 3, 4];
		print(a.slice(1, 3));
		print(a.slice(-2));
		print(a.concat([5], [6]));
		print(a);
	`, "[2, 3]\n[3, 4]\n[1, 2, 3, 4, 5, 6]\n[1, 2, 3, 4]\n")

	expectOutput(t, `
		let a = [1, 3];
		a.insert(1, 2);
		print(a);
		print(a.remove(0));
		print(a);
		a.clear();
		print(a, a.length);
	`, "[1, 2, 3]\n1\n[2, 3]\n[] 0\n")

	expectOutput(t, `print(["x", "y", "z"].join("-"));`, "x-y-z\n")
}

func TestArrayIntrinsicErrors(t *testing.T) {
	expectOutput(t,
		`try { [1].insert(5, 0); } catch (e) { print(e); }`,
		"insert index 5 out of range (length 1)\n")
	expectOutput(t,
		`try { [].reduce(fn(a, b) { return a + b; }); } catch (e) { print(e); }`,
		"reduce of empty array with no initial value\n")
	expectOutput(t,
		`try { [1].map(5); } catch (e) { print(e); }`,
		"map requires a function\n")
}

func TestStringIntrinsics(t *testing.T) {
	expectOutput(t, `print("a,b,c".split(","));`, "[\"a\", \"b\", \"c\"]\n")
	expectOutput(t, `print("hello".contains("ell"), "hello".contains("xyz"));`, "true false\n")
	expectOutput(t, `print("  pad  ".trim());`, "pad\n")
	expectOutput(t, `print("MiXeD".to_upper(), "MiXeD".to_lower());`, "MIXED mixed\n")
	expectOutput(t, `print("hemlock".starts_with("hem"), "hemlock".ends_with("lock"));`, "true true\n")
	expectOutput(t, `print("aaa".replace("a", "b"));`, "baa\n")
	expectOutput(t, `print("aaa".replace_all("a", "b"));`, "bbb\n")
	expectOutput(t, `print("ab".repeat(3));`, "ababab\n")
	expectOutput(t, `print("hello".substr(1, 3));`, "ell\n")
	expectOutput(t, `print("hello".slice(1, -1));`, "ell\n")
	expectOutput(t, `print("hello".find("llo"), "hello".find("x"));`, "2 -1\n")
}

func TestStringUnicodeIntrinsics(t *testing.T) {
	// é is two bytes in UTF-8; char_at is codepoint-based, byte_at is
	// byte-based.
	expectOutput(t, `print("héllo".length);`, "5\n")
	expectOutput(t, `print("héllo".char_at(1));`, "é\n")
	expectOutput(t, `print("héllo".byte_at(1));`, "195\n")
	expectOutput(t, `print("héllo".chars().length, "héllo".bytes().length);`, "5 6\n")
}

func TestStringToBytesBuffer(t *testing.T) {
	expectOutput(t, `
		let b = "abc".to_bytes();
		print(typeof(b), b.length, b[0]);
	`, "buffer 3 97\n")
}

func TestObjectIntrinsics(t *testing.T) {
	expectOutput(t, `
		let o = {b: 1, a: 2};
		print(o.keys());
		print(o.has("a"), o.has("z"));
	`, "[\"b\", \"a\"]\n"+"true false\n")
}

func TestObjectSerializeOrder(t *testing.T) {
	expectOutput(t, `
		let o = {z: 1, a: 2};
		print(o.serialize());
	`, "{\"z\":1,\"a\":2}\n")
}

func TestDeserializeErrors(t *testing.T) {
	expectOutput(t,
		`try { "{bad".deserialize(); } catch (e) { print("caught"); }`,
		"caught\n")
}

func TestChannelIntrinsicLen(t *testing.T) {
	expectOutput(t, `
		let ch = channel(2);
		ch.send(1);
		print(ch.len());
	`, "1\n")
}
