package chunk

// gearTable is the 256-entry table of 64-bit constants used by the gear
// hash in the content-defined chunker. Per the format notes in spec §9,
// these constants are part of the on-disk format: changing them changes
// every chunk boundary a repository has ever produced, so they are fixed
// at compile time and never derived at runtime.
var gearTable = [256]uint64{
	0x7a2a5cb0305ac53f, 0xe812635beff11954, 0xf47605be30c623e7, 0x16d8a98d52ed78d1,
	0xc276b84ecbb3ae65, 0x88bfed302cbbee75, 0x4d4782806eeb0ba4, 0x93af3f9d7c42bb07,
	0x65330139f1201823, 0x56f127de2e7e0be3, 0x230088dc8df8f341, 0x29827ed708b99541,
	0x96240ab23d26e084, 0xcface2bf35f0247e, 0xa14e0474e7d10b5d, 0x064a89dd7402150f,
	0x0e1ca10604244f28, 0xaae379bcf2a5f8ad, 0xecb3ad498bf99f62, 0x51602c2f8bf69de5,
	0x65c81a8f2ac1df60, 0x805dac62d77595a2, 0x52229f89934b04dd, 0x36e72e35eaa05624,
	0x848208fc1de8b9f9, 0x72948f7c94425391, 0x296f4a271c4193ef, 0x76003b7165c4008f,
	0x5ed5510ac0180d1a, 0xcf495d32f363576b, 0x1c141e299eecb7ed, 0xae0d7d740cf83319,
	0xed73c06db8fb7b78, 0x17931bb352d1b52b, 0x10450f7b305364af, 0xe1e8db482bd89d5f,
	0x45264f91bf8fb404, 0xadc61019375901dd, 0x1752289d5bcba995, 0x1d2c1616546c98f0,
	0x51a6d34decdaefad, 0x45196ecbb12b0c05, 0xda04c2d245bf6e6c, 0xbbc5c39f6644f1ab,
	0xf582ffe61e111b4f, 0x30148113ed315624, 0x204cb84300e4eba3, 0x4ce74957a9e78715,
	0xb9c3bf2faefa7d74, 0xf9f728259860426a, 0xb9ec0f6d8c97ed4d, 0x47b9afc6267dc5d1,
	0x0bc9fde857624a27, 0x8239dafa29a0c834, 0x8841d69ac31103e6, 0x5877a3868ec16f0c,
	0x84ecf23c37fdb776, 0x4af096882bc717d5, 0xce9de1fc97844023, 0x1e23a4a7c1be23c8,
	0x2a06721ef9064841, 0xa2919b14ac966d46, 0x1af2448a59838420, 0x463d5e50723b5f81,
	0x13a8871ac14bb357, 0xe951e5c4259329d0, 0x53f956cbc91089d7, 0x035089652c5d8e13,
	0xfbc429690cc77d0b, 0x395c4625913fded1, 0x82e4c1d16d31fc7e, 0x0ea6f9d626444eaf,
	0xfa0e0f865a15b1f4, 0x2640bde19e844599, 0xd21809ef21a90626, 0x48a56a2a886476ec,
	0xb688b9690e076746, 0xb3b6473923a1aa91, 0x897fbfc6089a4636, 0x93dc0e0ec4e4e580,
	0xafcdcb397a7232cc, 0xfe50d71a69681dd4, 0x5501f6124cd624db, 0x2af5fd6354781bdc,
	0x8270a28e4d3c4c6d, 0xf16d07e606c9726b, 0x912a0368cb56dcc2, 0xcfa6fdec47b744c3,
	0x9d91be4309bacf19, 0x1ac81fb690ee364d, 0xe12b9ce99ab6c140, 0xb69b72c6ace59c40,
	0xc811f8fe0b434e6a, 0x9a4a4f72f35c6987, 0x65dd087db621ef33, 0x85b41cc7f46f846b,
	0x5906413f1bf461d0, 0xf64233464993e4d1, 0x16fc2254883fb6e4, 0x201318f120b5318e,
	0x3f201eb0005bb3cb, 0x1d19b9eff42ab888, 0xd8b0625f99c248e9, 0xf9ef5f025b0db2d6,
	0x34217049b6e14248, 0xaccd5272af325660, 0x7072ffe66e2e2f3c, 0xe2f44b246f796d1a,
	0x54423ab65b7eb8ea, 0x34f826747b0026c2, 0x473d2e5867af9827, 0xcc8785fee6c4db4f,
	0x9b9f0a08c4f88751, 0xa4bbb77233b1aa87, 0x19dba9ade49cb91b, 0x9183b2a55e553029,
	0x3b714cea2458494a, 0x316dad5fcee56673, 0xbbd766366868015c, 0x5b99d47dc20aecc0,
	0x5c4666c54315203a, 0x1a1b351a52c33fb7, 0xea7d947607333bad, 0x7668c4c0ddb516a4,
	0x02a06e9f0ba2d6c2, 0x4ef048a1352e0d42, 0xe92fc92fb6b1b226, 0x298bf98da7324cd5,
	0xe144f7fabddf792b, 0x73a68ae885008908, 0xd0431cbf7a91ef4c, 0x154e33486424c63d,
	0xae92efb613122d22, 0x07a8a296242f1181, 0x85bba0c0792146b1, 0x63d3d65b2fbcd8f4,
	0x5a3616dc5d93005d, 0xb878682e35156cc2, 0x9ed9ec036eba93d3, 0x00f104a0210205b2,
	0x76f0a43de11701fc, 0xabaaea5aaad6ee58, 0x5e0bcbbc24db6a8f, 0xc2be20a982be0ccf,
	0x24562cd9c0f33f4e, 0x838af4f75c31e8d5, 0x11453606a32440c5, 0xdeef4d4c3435da89,
	0x4f69efbbe9655d50, 0x227610254d548e00, 0x1e064b65280d684c, 0xae5badc11b466269,
	0xa9373b1e869a04b3, 0x787cfdd829d496ed, 0x1f3653c18ab82f15, 0xc437a68652521765,
	0xc17a9a9624e16270, 0x80cd6bfb7e3e5fe1, 0x439b38786f13b3e4, 0x5cc921717471740a,
	0x0d8e58f61a13ecea, 0xa12a99ae032c4edf, 0x86522f1b7b569c39, 0x70448f5ff9f52f3f,
	0x803337b5257a6f46, 0xf10484483f5f7f4f, 0xcef30ae0dd88688c, 0x78be9676f4fde7da,
	0x9bc9bbf73591beca, 0x29270ee05c9231ad, 0x86dfcc5135fcd294, 0x64fc412ca4bfeb37,
	0x2f821019db699fb0, 0x2d774cdbad0a7977, 0x06ced0327bbeb7d4, 0xd3d01e1addfada0d,
	0xbec043afa73d4796, 0xa55553ccf3930b30, 0x25c5e50fab63a6b7, 0x9f36b44f5c65c4c0,
	0xb54e91333ad96709, 0x1eb5d8a3ebe839d3, 0x9ddd51482b85678f, 0x6a5d67c1e1a8c3e7,
	0xd3dca6cfee7e6517, 0x798f9a3a45f1a5ae, 0xec6d76cdfccaadae, 0x46d6774a578b3e17,
	0x67e6818d98a7b06b, 0x1772e7b27ddf42f3, 0x3cce69811e5ef2ba, 0x56ef2bb1647589e0,
	0xa79ff59be0e7373f, 0x3921fdf5cb6451a0, 0xf13515f541c55e06, 0xe6a338f8dca2ef10,
	0x1f70eba89ec78fea, 0xb6a25feca291f313, 0x06f860313d9d95a0, 0x64f606d04eb78a3d,
	0x13fd07772b6d3c0b, 0xf0891e51fb09cf20, 0xda784ba6219bccf1, 0x4ff1f12ad0002511,
	0x59dcd488deddf687, 0x827b733d13167bab, 0x7784a547291edb9c, 0x9633dacf54b82fae,
	0x1580f5f9bcbe1e38, 0x78b71ce6e3650e9d, 0x971cb82efcaf250b, 0x324289e4ac5189f9,
	0xeae9dfd26a49a637, 0xa4c96e93803fae17, 0xc968e8a502303065, 0x04bd9f684822e861,
	0xded853ee0f8b8c20, 0xc1234f12d9804bc5, 0x52b4c3a2364f93bb, 0xb1ccfb84c741980f,
	0xec732a8fcf49f08e, 0xc990ea1cfef57c85, 0xf0857ca971477577, 0xfaf7d99e3da1a923,
	0x5f1445748932625a, 0x6e6b7990fce49920, 0x19b7a6857603db31, 0x672345f34ce6e2a2,
	0xd10e69f255f76d55, 0xca4db5cbb6484455, 0x4896ae3801e2d586, 0xc7de0bc405e29cd0,
	0x253d4359eda6c799, 0xd6dccae74ad3766d, 0x96ff8c8e5a0723e2, 0xefee9873dee88375,
	0xf5a2698aeb30aac1, 0xdba5d77eb59f2e70, 0x404de2f2e2cb8642, 0xf74c76cdcbddc06f,
	0xe219d1d4613a79ae, 0x0f501bc69cf68190, 0x1789bb616fa9d479, 0x3efb4322ec848051,
	0x3932ac33754bd6cc, 0x9786451f19c48a58, 0x847df9f251e952d5, 0x1a4e8e37c917e9ff,
	0xa079c9f3e986c0de, 0x2c52599eaa9928de, 0xdc17644c7023ec3f, 0x50c35c8e8b092e24,
	0x27555383ca262ba1, 0x5868c10e4b3ad279, 0x2e11683353cf1505, 0x40a136639704d87e,
}
